package protocol

import (
	"errors"
	"testing"
	"time"
)

func validMsg() *Message {
	return &Message{
		Key:     "key-1",
		From:    "gpt",
		To:      Recipients{"claude"},
		Type:    TypeRequest,
		Payload: Payload{Content: "hello"},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			Priority:  PriorityNormal,
			TTL:       DefaultTTL,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validMsg()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Message)
		want error
	}{
		{"missing key", func(m *Message) { m.Key = "" }, ErrMissingKey},
		{"missing sender", func(m *Message) { m.From = "" }, ErrMissingSender},
		{"no recipients", func(m *Message) { m.To = nil }, ErrMissingRecipient},
		{"empty recipient", func(m *Message) { m.To = Recipients{""} }, ErrMissingRecipient},
		{"unknown type", func(m *Message) { m.Type = "telegram" }, ErrUnknownType},
		{"zero timestamp", func(m *Message) { m.Meta.Timestamp = time.Time{} }, ErrMissingTimestamp},
	}
	for _, tc := range cases {
		m := validMsg()
		tc.mod(m)
		err := Validate(m)
		if err == nil {
			t.Errorf("%s: Validate accepted invalid message", tc.name)
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: Validate = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestValidate_NilMessage(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("Validate(nil): expected error")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	raw := []byte(`{
		"key": "k1",
		"from": "gpt",
		"to": "claude",
		"type": "request",
		"payload": {"content": "Test message"},
		"metadata": {"timestamp": "2026-01-02T15:04:05Z", "priority": "high", "ttl": 600}
	}`)
	m, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Key != "k1" || m.From != "gpt" || m.To.Primary() != "claude" {
		t.Errorf("parsed identity = %s %s->%s", m.Key, m.From, m.To.Primary())
	}
	if m.Meta.Priority != PriorityHigh || m.Meta.TTL != 600 {
		t.Errorf("parsed metadata = %+v", m.Meta)
	}
}

func TestParse_BadJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("Parse accepted malformed JSON")
	}
}

func TestParse_InvalidMessage(t *testing.T) {
	_, err := Parse([]byte(`{"key":"k1","from":"gpt","type":"request"}`))
	if !errors.Is(err, ErrMissingRecipient) {
		t.Errorf("Parse = %v, want %v", err, ErrMissingRecipient)
	}
}

func TestExpired(t *testing.T) {
	m := validMsg()
	if m.Expired() {
		t.Error("fresh message reported expired")
	}

	m.Meta.Timestamp = time.Now().Add(-2 * time.Hour)
	m.Meta.TTL = 60
	if !m.Expired() {
		t.Error("stale message not reported expired")
	}

	// TTL <= 0 disables expiry entirely.
	m.Meta.TTL = 0
	if m.Expired() {
		t.Error("zero-TTL message reported expired")
	}
	m.Meta.TTL = -1
	if m.Expired() {
		t.Error("negative-TTL message reported expired")
	}
}

func TestExpiresAt(t *testing.T) {
	m := validMsg()
	m.Meta.Timestamp = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	m.Meta.TTL = 600

	at, ok := m.ExpiresAt()
	if !ok {
		t.Fatal("ExpiresAt: ok = false for expiring message")
	}
	want := time.Date(2026, 1, 2, 15, 10, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", at, want)
	}

	m.Meta.TTL = 0
	if _, ok := m.ExpiresAt(); ok {
		t.Error("ExpiresAt: ok = true for non-expiring message")
	}
}
