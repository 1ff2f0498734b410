package crypt

import "errors"

// Sentinel errors separating misconfiguration (missing key material) from
// bad ciphertext. Callers match with errors.Is.
var (
	ErrBadKeySize    = errors.New("secret key must be 32 bytes")
	ErrNoSecretKey   = errors.New("no secret key configured")
	ErrNoKeyPair     = errors.New("no key pair generated")
	ErrUnknownPeer   = errors.New("no public key registered for peer")
	ErrDecryptFailed = errors.New("decrypt failed")
	ErrNotEncrypted  = errors.New("message is not encrypted")
)
