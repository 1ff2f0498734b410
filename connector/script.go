package connector

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/switchboard/protocol"
)

const defaultReply = "Message received. Working on it."

// Script is a connector that answers every request with the next entry
// from a fixed reply list, cycling when it runs out. It backs agents
// declared in config without an endpoint, and tests.
type Script struct {
	Base

	mu      sync.Mutex
	replies []string
	idx     int
}

// NewScript creates a Script connector for the given agent that cycles
// through replies. With no replies it answers a stock acknowledgement.
func NewScript(agentID, agentType string, replies ...string) *Script {
	return &Script{
		Base:    NewBase(agentID, agentType),
		replies: replies,
	}
}

// Process answers the request with the next scripted reply.
func (s *Script) Process(_ context.Context, m *protocol.Message) (*protocol.Message, error) {
	s.mu.Lock()
	reply := defaultReply
	if len(s.replies) > 0 {
		reply = s.replies[s.idx%len(s.replies)]
		s.idx++
	}
	s.mu.Unlock()

	return protocol.NewResponse(m, protocol.StatusOK, reply).WithUsage(len(reply), 0), nil
}
