package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/switchboard/protocol"
)

const (
	inboxSize  = 256
	outboxSize = 256
)

// Base carries the state every connector shares: identity, the
// connection flag, a bounded inbox filled by Send, and a bounded outbox
// drained by Receive. Embed it and implement Process.
type Base struct {
	mu        sync.Mutex
	agentID   string
	agentType string
	serverURL string
	connected bool

	inbox  chan *protocol.Message // relay -> agent
	outbox chan *protocol.Message // agent -> relay
}

// NewBase returns connector scaffolding for the given agent identity.
func NewBase(agentID, agentType string) Base {
	return Base{
		agentID:   agentID,
		agentType: agentType,
		inbox:     make(chan *protocol.Message, inboxSize),
		outbox:    make(chan *protocol.Message, outboxSize),
	}
}

// Connect marks the connector connected to the given relay.
func (b *Base) Connect(_ context.Context, serverURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serverURL = serverURL
	b.connected = true
	return nil
}

// Disconnect marks the connector disconnected. Queued messages stay
// queued; new Sends are refused.
func (b *Base) Disconnect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

// Send queues a message for the agent side to consume via Inbox.
func (b *Base) Send(_ context.Context, m *protocol.Message) error {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return fmt.Errorf("agent %s not connected", b.agentID)
	}
	select {
	case b.inbox <- m:
		return nil
	default:
		return fmt.Errorf("agent %s inbox full", b.agentID)
	}
}

// Receive pops the next agent-originated message, or (nil, nil) when the
// outbox is empty.
func (b *Base) Receive(_ context.Context) (*protocol.Message, error) {
	select {
	case m := <-b.outbox:
		return m, nil
	default:
		return nil, nil
	}
}

// Inbox exposes messages delivered through Send for the agent side.
func (b *Base) Inbox() <-chan *protocol.Message {
	return b.inbox
}

// Outbound queues a message for the relay to pick up on its next Receive
// poll.
func (b *Base) Outbound(m *protocol.Message) error {
	select {
	case b.outbox <- m:
		return nil
	default:
		return fmt.Errorf("agent %s outbox full", b.agentID)
	}
}

// Status reports identity and connection state.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		AgentID:   b.agentID,
		AgentType: b.agentType,
		Connected: b.connected,
	}
}

// ServerURL returns the relay URL passed to Connect.
func (b *Base) ServerURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverURL
}
