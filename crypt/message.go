package crypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/switchboard/protocol"
)

// Mode selects how a message payload is encrypted.
type Mode string

const (
	ModeSymmetric  Mode = "symmetric"
	ModeAsymmetric Mode = "asymmetric"
)

// Blob prefixes record the mode a ciphertext was produced with, so
// DecryptMessage needs no out-of-band hint.
const (
	prefixSymmetric  = "sym:"
	prefixAsymmetric = "box:"
)

// EncryptMessage replaces the message payload with its encrypted form:
// the payload is serialized to JSON, sealed, and stored base64-encoded in
// Payload.Ciphertext with a mode prefix. Plaintext fields are cleared and
// Encrypted is set. Symmetric mode needs the keyring secret; asymmetric
// mode needs the local pair and the primary recipient's registered key.
func (k *Keyring) EncryptMessage(m *protocol.Message, mode Mode) error {
	if m.Encrypted {
		return fmt.Errorf("message %s already encrypted", m.Key)
	}
	plain, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var blob []byte
	var prefix string
	switch mode {
	case ModeSymmetric:
		secret, ok := k.Secret()
		if !ok {
			return ErrNoSecretKey
		}
		blob, err = EncryptSymmetric(secret, plain)
		prefix = prefixSymmetric
	case ModeAsymmetric:
		pair, ok := k.Pair()
		if !ok {
			return ErrNoKeyPair
		}
		peer, ok := k.Peer(m.To.Primary())
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, m.To.Primary())
		}
		blob, err = EncryptFor(peer, pair.Private, plain)
		prefix = prefixAsymmetric
	default:
		return fmt.Errorf("unknown encryption mode %q", mode)
	}
	if err != nil {
		return err
	}

	m.Payload = protocol.Payload{Ciphertext: prefix + base64.StdEncoding.EncodeToString(blob)}
	m.Encrypted = true
	return nil
}

// DecryptMessage restores the plaintext payload of an encrypted message,
// byte for byte, and clears Encrypted. The mode is read from the
// ciphertext prefix; asymmetric blobs are opened against the sender's
// registered public key.
func (k *Keyring) DecryptMessage(m *protocol.Message) error {
	if !m.Encrypted {
		return ErrNotEncrypted
	}

	var plain []byte
	switch {
	case strings.HasPrefix(m.Payload.Ciphertext, prefixSymmetric):
		secret, ok := k.Secret()
		if !ok {
			return ErrNoSecretKey
		}
		blob, err := base64.StdEncoding.DecodeString(m.Payload.Ciphertext[len(prefixSymmetric):])
		if err != nil {
			return fmt.Errorf("%w: bad base64", ErrDecryptFailed)
		}
		if plain, err = DecryptSymmetric(secret, blob); err != nil {
			return err
		}
	case strings.HasPrefix(m.Payload.Ciphertext, prefixAsymmetric):
		pair, ok := k.Pair()
		if !ok {
			return ErrNoKeyPair
		}
		sender, ok := k.Peer(m.From)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, m.From)
		}
		blob, err := base64.StdEncoding.DecodeString(m.Payload.Ciphertext[len(prefixAsymmetric):])
		if err != nil {
			return fmt.Errorf("%w: bad base64", ErrDecryptFailed)
		}
		if plain, err = DecryptFrom(sender, pair.Private, blob); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unrecognized ciphertext format", ErrDecryptFailed)
	}

	var payload protocol.Payload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	m.Payload = payload
	m.Encrypted = false
	return nil
}

// Sign fills the message signature: an HMAC-SHA256 over the identifying
// fields and the payload, keyed with the keyring secret.
func (k *Keyring) Sign(m *protocol.Message) error {
	secret, ok := k.Secret()
	if !ok {
		return ErrNoSecretKey
	}
	m.Signature = computeSignature(secret, m)
	return nil
}

// Verify reports whether the message signature matches its contents under
// the keyring secret. Unsigned messages never verify.
func (k *Keyring) Verify(m *protocol.Message) bool {
	secret, ok := k.Secret()
	if !ok || m.Signature == "" {
		return false
	}
	return hmac.Equal([]byte(m.Signature), []byte(computeSignature(secret, m)))
}

// computeSignature MACs key|from|to|body, where body is the ciphertext
// for encrypted messages and the content otherwise.
func computeSignature(secret SecretKey, m *protocol.Message) string {
	body := m.Payload.Content
	if m.Encrypted {
		body = m.Payload.Ciphertext
	}
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(m.Key + "|" + m.From + "|" + strings.Join(m.To, ",") + "|" + body)) //nolint:errcheck
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
