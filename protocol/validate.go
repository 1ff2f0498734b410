package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Validate checks that a message carries everything the relay needs to
// route it: a key, a sender, at least one recipient, a recognized type,
// and a timestamp. A nil message is invalid.
func Validate(m *Message) error {
	if m == nil {
		return fmt.Errorf("nil message")
	}
	if m.Key == "" {
		return ErrMissingKey
	}
	if m.From == "" {
		return fmt.Errorf("message %s: %w", m.Key, ErrMissingSender)
	}
	if len(m.To) == 0 {
		return fmt.Errorf("message %s: %w", m.Key, ErrMissingRecipient)
	}
	for _, to := range m.To {
		if to == "" {
			return fmt.Errorf("message %s: %w", m.Key, ErrMissingRecipient)
		}
	}
	switch m.Type {
	case TypeRequest, TypeResponse, TypeBroadcast, TypeNotification:
	default:
		return fmt.Errorf("message %s: %w: %q", m.Key, ErrUnknownType, m.Type)
	}
	if m.Meta.Timestamp.IsZero() {
		return fmt.Errorf("message %s: %w", m.Key, ErrMissingTimestamp)
	}
	return nil
}

// Parse decodes a JSON-encoded message and validates it.
func Parse(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Expired reports whether the message's time-to-live has elapsed.
// Messages with TTL <= 0 never expire.
func (m *Message) Expired() bool {
	at, ok := m.ExpiresAt()
	if !ok {
		return false
	}
	return time.Now().After(at)
}

// ExpiresAt returns the instant the message expires. ok is false for
// non-expiring messages (TTL <= 0).
func (m *Message) ExpiresAt() (at time.Time, ok bool) {
	if m.Meta.TTL <= 0 {
		return time.Time{}, false
	}
	return m.Meta.Timestamp.Add(time.Duration(m.Meta.TTL) * time.Second), true
}
