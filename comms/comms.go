// Package comms implements the relay core: a priority message bus that
// validates, queues, routes, and records traffic between registered
// agent connectors, and the dispatcher that drives it.
package comms

import (
	"time"

	"github.com/GoCodeAlone/switchboard/protocol"
)

// relayID is the sender identity the relay itself uses on messages it
// originates, such as aggregate broadcast responses.
const relayID = "switchboard"

// defaultCompletedCap bounds the in-memory completion log.
const defaultCompletedCap = 1000

// Completion pairs a routed message with its final response.
type Completion struct {
	Message     *protocol.Message `json:"message"`
	Response    *protocol.Message `json:"response"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Delivery is the outcome of routing one message: the response (when the
// route produced one), the relay-measured latency, and the error for
// failed routes.
type Delivery struct {
	Status    protocol.Status
	Response  *protocol.Message
	LatencyMS int64
	Err       error
}

// Snapshot is a point-in-time copy of bus counters and registry state.
type Snapshot struct {
	Pending        int      `json:"pending"`
	InFlight       int      `json:"in_flight"`
	TotalProcessed uint64   `json:"total_processed"`
	TotalErrors    uint64   `json:"total_errors"`
	AvgLatencyMS   float64  `json:"avg_latency_ms"`
	ActiveAgents   []string `json:"active_agents"`
	Connections    int      `json:"connections"`
}
