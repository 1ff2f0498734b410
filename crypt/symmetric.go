package crypt

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// newNonce draws a fresh random nonce.
func newNonce() ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// EncryptSymmetric seals plaintext with the shared secret key. The nonce
// is prepended to the returned blob and the authentication tag is part of
// the sealed bytes, so the blob is self-contained.
func EncryptSymmetric(key SecretKey, plaintext []byte) ([]byte, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, (*[KeySize]byte)(&key)), nil
}

// DecryptSymmetric opens a blob produced by EncryptSymmetric. A wrong key
// or a tampered blob returns ErrDecryptFailed.
func DecryptSymmetric(key SecretKey, blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: blob too short", ErrDecryptFailed)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	plaintext, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, (*[KeySize]byte)(&key))
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
