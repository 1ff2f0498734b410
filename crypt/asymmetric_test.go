package crypt

import (
	"bytes"
	"errors"
	"testing"
)

func TestAsymmetric_RoundTrip(t *testing.T) {
	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	plaintext := []byte("for your eyes only")

	blob, err := EncryptFor(recipient.Public, sender.Private, plaintext)
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	got, err := DecryptFrom(sender.Public, recipient.Private, blob)
	if err != nil {
		t.Fatalf("DecryptFrom: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestAsymmetric_OnlyRecipientOpens(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	eavesdropper, _ := GenerateKeyPair()

	blob, err := EncryptFor(recipient.Public, sender.Private, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	if _, err := DecryptFrom(sender.Public, eavesdropper.Private, blob); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("eavesdropper decrypt: err = %v, want ErrDecryptFailed", err)
	}
}

func TestAsymmetric_SenderAuthenticated(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	impostor, _ := GenerateKeyPair()

	blob, err := EncryptFor(recipient.Public, impostor.Private, []byte("forged"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	// Opening against the claimed sender's key must fail.
	if _, err := DecryptFrom(sender.Public, recipient.Private, blob); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("forged sender: err = %v, want ErrDecryptFailed", err)
	}
}

func TestAsymmetric_TamperFails(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	blob, err := EncryptFor(recipient.Public, sender.Private, []byte("payload"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	blob[nonceSize] ^= 0x01
	if _, err := DecryptFrom(sender.Public, recipient.Private, blob); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("tampered blob: err = %v, want ErrDecryptFailed", err)
	}
}
