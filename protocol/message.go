// Package protocol defines the wire-level message format exchanged
// between agents through the relay: construction, validation, priority
// ordering, and expiry. Everything here is pure — no I/O, no shared state.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of relay message.
type Type string

const (
	TypeRequest      Type = "request"      // expects a correlated response
	TypeResponse     Type = "response"     // reply to a request
	TypeBroadcast    Type = "broadcast"    // delivered to a set of agents
	TypeNotification Type = "notification" // one-way, no reply expected
)

// Priority determines dequeue order on the bus.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns the queue ordering weight for the priority:
// low=1, normal=5, high=10, critical=100. Higher weights dequeue first;
// unknown priorities weigh the same as normal.
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 5
	case PriorityHigh:
		return 10
	case PriorityCritical:
		return 100
	default:
		return 5
	}
}

// Status reports the outcome of a routed request.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// DefaultTTL is the time-to-live stamped on messages built without an
// explicit TTL, in seconds.
const DefaultTTL int64 = 3600

// Recipients is the destination set of a message. Direct messages carry a
// single agent ID; broadcasts carry the full target list. On the wire a
// single recipient is a bare JSON string and multiple recipients are an
// array; both forms decode into the same type.
type Recipients []string

// Primary returns the first recipient, or "" when the set is empty.
func (r Recipients) Primary() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// MarshalJSON emits a bare string for a single recipient and an array
// otherwise, preserving the wire form peers expect.
func (r Recipients) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// UnmarshalJSON accepts either a bare string or an array of strings.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = Recipients{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients must be a string or array of strings")
	}
	*r = Recipients(many)
	return nil
}

// Payload carries the message body. Encrypted messages hold only
// Ciphertext; plaintext messages hold Content and optional Context.
type Payload struct {
	Content    string         `json:"content,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Ciphertext string         `json:"ciphertext,omitempty"`
}

// Meta holds delivery metadata stamped at build time.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	Priority  Priority  `json:"priority"`
	TTL       int64     `json:"ttl"` // seconds; <=0 means the message never expires
}

// Message is the unit moved through the relay.
//
// Key is unique for the lifetime of the message and is shared by its
// response (responses correlate by key). TraceID is stable across an
// entire request/reply chain; ParentID names the message being replied
// to. Status, TokensUsed, and LatencyMS are set on responses only.
type Message struct {
	Key       string     `json:"key"`
	From      string     `json:"from"`
	To        Recipients `json:"to"`
	Type      Type       `json:"type"`
	Payload   Payload    `json:"payload"`
	Meta      Meta       `json:"metadata"`
	Encrypted bool       `json:"encrypted,omitempty"`
	Signature string     `json:"signature,omitempty"`
	TraceID   string     `json:"trace_id,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"`

	Status     Status `json:"status,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
}

// NewRequest builds a request from one agent to another with a fresh key,
// current timestamp, normal priority, and the default TTL.
func NewRequest(from, to, content string) *Message {
	return &Message{
		Key:     newKey(),
		From:    from,
		To:      Recipients{to},
		Type:    TypeRequest,
		Payload: Payload{Content: content},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			Priority:  PriorityNormal,
			TTL:       DefaultTTL,
		},
	}
}

// NewResponse builds the reply to req. The response shares the request's
// key (responses correlate by key), propagates the trace ID (the request
// key starts a new chain), and records the request as its parent.
func NewResponse(req *Message, status Status, content string) *Message {
	trace := req.TraceID
	if trace == "" {
		trace = req.Key
	}
	return &Message{
		Key:     req.Key,
		From:    req.To.Primary(),
		To:      Recipients{req.From},
		Type:    TypeResponse,
		Payload: Payload{Content: content},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			Priority:  req.Meta.Priority,
			TTL:       req.Meta.TTL,
		},
		TraceID:  trace,
		ParentID: req.Key,
		Status:   status,
	}
}

// NewBroadcast builds a message addressed to every agent in targets.
func NewBroadcast(from, content string, targets []string, p Priority) *Message {
	return &Message{
		Key:     newKey(),
		From:    from,
		To:      append(Recipients(nil), targets...),
		Type:    TypeBroadcast,
		Payload: Payload{Content: content},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			Priority:  p,
			TTL:       DefaultTTL,
		},
	}
}

// NewNotification builds a one-way message that expects no reply.
func NewNotification(from, to, content string) *Message {
	m := NewRequest(from, to, content)
	m.Type = TypeNotification
	return m
}

// WithPriority sets the message priority and returns the message.
func (m *Message) WithPriority(p Priority) *Message {
	m.Meta.Priority = p
	return m
}

// WithTTL sets the time-to-live in seconds and returns the message.
func (m *Message) WithTTL(seconds int64) *Message {
	m.Meta.TTL = seconds
	return m
}

// WithContext attaches arbitrary context values and returns the message.
func (m *Message) WithContext(ctx map[string]any) *Message {
	m.Payload.Context = ctx
	return m
}

// WithUsage records response metadata and returns the message.
func (m *Message) WithUsage(tokens int, latencyMS int64) *Message {
	m.TokensUsed = tokens
	m.LatencyMS = latencyMS
	return m
}

// Clone returns a copy safe to mutate independently. Recipient and
// context containers are copied; context values are shared.
func (m *Message) Clone() *Message {
	clone := *m
	clone.To = append(Recipients(nil), m.To...)
	if m.Payload.Context != nil {
		ctx := make(map[string]any, len(m.Payload.Context))
		for k, v := range m.Payload.Context {
			ctx[k] = v
		}
		clone.Payload.Context = ctx
	}
	return &clone
}

// String renders a short identifying form for logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s->%v [%s/%s]", m.Type, m.From, []string(m.To), m.Key, m.Meta.Priority)
}

// newKey generates a message key.
func newKey() string {
	return uuid.NewString()
}
