package crypt

import (
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// EncryptFor seals plaintext so that only the holder of recipientPub's
// private key can open it. The sealing is authenticated with senderPriv,
// so the recipient also learns who sent it. Nonce prepended as in the
// symmetric mode.
func EncryptFor(recipientPub, senderPriv *[32]byte, plaintext []byte) ([]byte, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], plaintext, &nonce, recipientPub, senderPriv), nil
}

// DecryptFrom opens a blob sealed with EncryptFor by the holder of
// senderPub. Any mismatch of keys or tampering returns ErrDecryptFailed.
func DecryptFrom(senderPub, recipientPriv *[32]byte, blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+box.Overhead {
		return nil, fmt.Errorf("%w: blob too short", ErrDecryptFailed)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	plaintext, ok := box.Open(nil, blob[nonceSize:], &nonce, senderPub, recipientPriv)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
