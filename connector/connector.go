// Package connector defines the contract an agent endpoint fulfills to
// take part in the relay, plus the built-in adapters: Script for
// canned-reply agents and HTTP for agents reachable over the network.
package connector

import (
	"context"

	"github.com/GoCodeAlone/switchboard/protocol"
)

// Status describes a connector as the relay sees it.
type Status struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	Connected bool   `json:"connected"`
}

// Connector is the capability contract between the relay and one agent.
// The bus routes requests through Process and pushes one-way traffic
// through Send; Receive lets the relay poll for messages the agent wants
// forwarded.
type Connector interface {
	// Connect prepares the connector for traffic from the given relay URL.
	Connect(ctx context.Context, serverURL string) error

	// Disconnect stops accepting traffic. Routes already in flight may
	// still finish.
	Disconnect(ctx context.Context) error

	// Send delivers a message to the agent without waiting for a reply.
	Send(ctx context.Context, m *protocol.Message) error

	// Receive returns the next message the agent wants relayed, or
	// (nil, nil) when nothing is pending. It never blocks.
	Receive(ctx context.Context) (*protocol.Message, error)

	// Process hands the agent a request and returns its response.
	Process(ctx context.Context, m *protocol.Message) (*protocol.Message, error)

	// Status reports the connector's identity and connection state.
	Status() Status
}
