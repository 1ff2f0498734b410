// Package crypt encrypts relay payloads. It offers a shared-secret mode
// (NaCl secretbox) and a public-key mode (NaCl box), plus a Keyring that
// holds the local key material and registered peer keys. Both modes are
// authenticated: a wrong key or a tampered blob fails decryption outright
// rather than producing garbage.
package crypt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// KeySize is the required secret key length in bytes.
const KeySize = 32

// nonceSize is the NaCl nonce length prepended to every blob.
const nonceSize = 24

// SecretKey is a 32-byte shared symmetric key.
type SecretKey [KeySize]byte

// NewSecretKey generates a random secret key.
func NewSecretKey() (SecretKey, error) {
	var key SecretKey
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("generate secret key: %w", err)
	}
	return key, nil
}

// ParseSecretKey decodes a base64 key produced by Encode. Keys of any
// length other than 32 bytes are rejected.
func ParseSecretKey(encoded string) (SecretKey, error) {
	var key SecretKey
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: got %d", ErrBadKeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// Encode returns the base64 form of the key for config transport.
func (k SecretKey) Encode() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// KeyPair is a NaCl box key pair for public-key payload encryption.
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeyPair creates a fresh key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// PublicEncoded returns the base64 form of the public key for sharing
// with peers.
func (p *KeyPair) PublicEncoded() string {
	return EncodePublicKey(p.Public)
}

// EncodePublicKey returns the base64 form of a public key.
func EncodePublicKey(pub *[32]byte) string {
	return base64.StdEncoding.EncodeToString(pub[:])
}

// ParsePublicKey decodes a base64 public key received from a peer.
func ParsePublicKey(encoded string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrBadKeySize, len(raw))
	}
	var pub [32]byte
	copy(pub[:], raw)
	return &pub, nil
}

// Keyring holds the relay's key material: the shared secret key, the
// local key pair, and peer public keys registered by agent ID. All
// methods are safe for concurrent use.
type Keyring struct {
	mu     sync.RWMutex
	secret *SecretKey
	pair   *KeyPair
	peers  map[string]*[32]byte
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{peers: make(map[string]*[32]byte)}
}

// SetSecret installs the shared secret key.
func (k *Keyring) SetSecret(key SecretKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.secret = &key
}

// Secret returns the shared secret key, if one is installed.
func (k *Keyring) Secret() (SecretKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.secret == nil {
		return SecretKey{}, false
	}
	return *k.secret, true
}

// GeneratePair creates and installs the local key pair, returning it so
// the public half can be shared.
func (k *Keyring) GeneratePair() (*KeyPair, error) {
	pair, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.pair = pair
	k.mu.Unlock()
	return pair, nil
}

// Pair returns the local key pair, if one was generated.
func (k *Keyring) Pair() (*KeyPair, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.pair == nil {
		return nil, false
	}
	return k.pair, true
}

// AddPeer registers a peer's public key under its agent ID, replacing any
// previous key.
func (k *Keyring) AddPeer(agentID string, pub *[32]byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.peers[agentID] = pub
}

// Peer returns the public key registered for an agent ID.
func (k *Keyring) Peer(agentID string) (*[32]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.peers[agentID]
	return pub, ok
}
