package crypt

import (
	"bytes"
	"errors"
	"testing"
)

func TestSymmetric_RoundTrip(t *testing.T) {
	key, err := NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey: %v", err)
	}
	plaintext := []byte("the relay moves messages, not meaning")

	blob, err := EncryptSymmetric(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptSymmetric: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := DecryptSymmetric(key, blob)
	if err != nil {
		t.Fatalf("DecryptSymmetric: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestSymmetric_WrongKeyFails(t *testing.T) {
	key1, _ := NewSecretKey()
	key2, _ := NewSecretKey()

	blob, err := EncryptSymmetric(key1, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptSymmetric: %v", err)
	}
	got, err := DecryptSymmetric(key2, blob)
	if !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("wrong key: err = %v, want ErrDecryptFailed", err)
	}
	if got != nil {
		t.Errorf("wrong key returned plaintext %q", got)
	}
}

func TestSymmetric_TamperFails(t *testing.T) {
	key, _ := NewSecretKey()
	blob, err := EncryptSymmetric(key, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptSymmetric: %v", err)
	}

	blob[len(blob)-1] ^= 0xff
	if _, err := DecryptSymmetric(key, blob); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("tampered blob: err = %v, want ErrDecryptFailed", err)
	}
}

func TestSymmetric_ShortBlobFails(t *testing.T) {
	key, _ := NewSecretKey()
	if _, err := DecryptSymmetric(key, []byte("short")); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("short blob: err = %v, want ErrDecryptFailed", err)
	}
}

func TestSymmetric_FreshNoncePerCall(t *testing.T) {
	key, _ := NewSecretKey()
	a, _ := EncryptSymmetric(key, []byte("same"))
	b, _ := EncryptSymmetric(key, []byte("same"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}
