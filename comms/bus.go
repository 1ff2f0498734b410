package comms

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/switchboard/connector"
	"github.com/GoCodeAlone/switchboard/protocol"
)

// Bus is the thread-safe in-process relay core. One mutex guards the
// pending queue, connector registry, in-flight table, completion log,
// and counters together; connector I/O always runs outside the lock.
type Bus struct {
	mu           sync.Mutex
	queue        messageQueue
	seq          uint64
	connectors   map[string]connector.Connector
	inflight     map[string]*protocol.Message
	completed    []*Completion // chronological; read newest-first
	completedCap int
	waiters      map[string][]chan *Completion

	totalProcessed uint64
	totalErrors    uint64
	avgLatencyMS   float64
	latencySamples uint64

	logger *slog.Logger
	hook   func(*Completion)
	wake   chan struct{}
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithCompletedCap overrides the completion log capacity.
func WithCompletedCap(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.completedCap = n
		}
	}
}

// WithCompletionHook registers a function invoked (outside the bus lock)
// for every completion, in completion order per key. Used to feed the
// archive and the event stream.
func WithCompletionHook(fn func(*Completion)) Option {
	return func(b *Bus) { b.hook = fn }
}

// New creates a Bus with an empty registry and a 1000-entry completion log.
func New(opts ...Option) *Bus {
	b := &Bus{
		connectors:   make(map[string]connector.Connector),
		inflight:     make(map[string]*protocol.Message),
		waiters:      make(map[string][]chan *Completion),
		completedCap: defaultCompletedCap,
		logger:       slog.Default(),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register installs the connector for an agent ID, replacing any
// previous one.
func (b *Bus) Register(agentID string, c connector.Connector) {
	b.mu.Lock()
	b.connectors[agentID] = c
	b.mu.Unlock()
	b.logger.Info("connector registered", slog.String("agent", agentID))
}

// Unregister removes an agent's connector. Routes already holding the
// connector finish normally; new messages for the agent become
// unroutable.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	delete(b.connectors, agentID)
	b.mu.Unlock()
	b.logger.Info("connector unregistered", slog.String("agent", agentID))
}

// Enqueue validates a message and adds it to the pending queue. Invalid
// messages are rejected, never silently dropped. Ordering is priority
// weight first, arrival order within equal weights.
func (b *Bus) Enqueue(m *protocol.Message) error {
	if err := protocol.Validate(m); err != nil {
		return err
	}

	b.mu.Lock()
	b.seq++
	heap.Push(&b.queue, &queued{msg: m, weight: m.Meta.Priority.Weight(), seq: b.seq})
	depth := b.queue.Len()
	b.mu.Unlock()

	b.logger.Debug("message enqueued",
		slog.String("key", m.Key),
		slog.String("from", m.From),
		slog.String("priority", string(m.Meta.Priority)),
		slog.Int("pending", depth))

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the highest-priority earliest-enqueued pending message
// and moves it to the in-flight table, or returns nil when nothing is
// pending. Entries whose TTL elapsed in the queue are not returned: each
// is completed with a timeout-status error response and the pop
// continues.
func (b *Bus) Dequeue() *protocol.Message {
	for {
		b.mu.Lock()
		if b.queue.Len() == 0 {
			b.mu.Unlock()
			return nil
		}
		q := heap.Pop(&b.queue).(*queued)
		m := q.msg
		b.inflight[m.Key] = m
		b.mu.Unlock()

		if m.Expired() {
			b.logger.Warn("message expired in queue",
				slog.String("key", m.Key),
				slog.Int64("ttl", m.Meta.TTL))
			b.Complete(m.Key, protocol.NewResponse(m, protocol.StatusTimeout, "message expired in queue"))
			continue
		}
		return m
	}
}

// Route resolves the message's recipients against the registry and
// invokes their connectors, measuring elapsed latency. Unroutable
// direct targets yield an error delivery; there is no broadcast
// fallback.
func (b *Bus) Route(ctx context.Context, m *protocol.Message) *Delivery {
	switch m.Type {
	case protocol.TypeBroadcast:
		return b.routeBroadcast(ctx, m)
	case protocol.TypeNotification:
		return b.routeNotification(ctx, m)
	default:
		return b.routeDirect(ctx, m)
	}
}

func (b *Bus) routeDirect(ctx context.Context, m *protocol.Message) *Delivery {
	target := m.To.Primary()
	c, ok := b.lookupConnector(target)
	if !ok {
		return &Delivery{Status: protocol.StatusError, Err: fmt.Errorf("%w: %s", ErrUnroutable, target)}
	}

	start := time.Now()
	resp, err := c.Process(ctx, m)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &Delivery{Status: protocol.StatusError, LatencyMS: elapsed, Err: fmt.Errorf("agent %s: %w", target, err)}
	}
	if resp == nil {
		return &Delivery{Status: protocol.StatusError, LatencyMS: elapsed, Err: fmt.Errorf("agent %s returned no response", target)}
	}
	resp.LatencyMS = elapsed
	status := resp.Status
	if status == "" {
		status = protocol.StatusOK
		resp.Status = status
	}
	return &Delivery{Status: status, Response: resp, LatencyMS: elapsed}
}

// routeNotification delivers one-way traffic through Send and
// synthesizes the delivery acknowledgement that completes the message.
func (b *Bus) routeNotification(ctx context.Context, m *protocol.Message) *Delivery {
	target := m.To.Primary()
	c, ok := b.lookupConnector(target)
	if !ok {
		return &Delivery{Status: protocol.StatusError, Err: fmt.Errorf("%w: %s", ErrUnroutable, target)}
	}

	start := time.Now()
	err := c.Send(ctx, m)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &Delivery{Status: protocol.StatusError, LatencyMS: elapsed, Err: fmt.Errorf("agent %s: %w", target, err)}
	}
	resp := protocol.NewResponse(m, protocol.StatusOK, "delivered")
	resp.LatencyMS = elapsed
	return &Delivery{Status: protocol.StatusOK, Response: resp, LatencyMS: elapsed}
}

// routeBroadcast fans the message out to every target concurrently and
// folds the results into one aggregate response: per-agent replies (or
// error text) keyed by agent ID in the response context. The broadcast
// fails only when every target fails.
func (b *Bus) routeBroadcast(ctx context.Context, m *protocol.Message) *Delivery {
	b.mu.Lock()
	conns := make(map[string]connector.Connector, len(m.To))
	for _, id := range m.To {
		if c, ok := b.connectors[id]; ok {
			conns[id] = c
		}
	}
	b.mu.Unlock()

	start := time.Now()
	results := make(map[string]any, len(m.To))
	okCount := 0
	tokens := 0

	for _, id := range m.To {
		if _, ok := conns[id]; !ok {
			results[id] = "error: " + ErrUnroutable.Error()
		}
	}

	var wg sync.WaitGroup
	var rmu sync.Mutex
	for _, id := range m.To {
		c, ok := conns[id]
		if !ok {
			continue
		}
		per := m.Clone()
		per.To = protocol.Recipients{id}
		wg.Add(1)
		go func(id string, c connector.Connector, per *protocol.Message) {
			defer wg.Done()
			resp, err := c.Process(ctx, per)
			rmu.Lock()
			defer rmu.Unlock()
			switch {
			case err != nil:
				results[id] = "error: " + err.Error()
			case resp == nil:
				results[id] = "error: no response"
			default:
				results[id] = resp.Payload.Content
				tokens += resp.TokensUsed
				okCount++
			}
		}(id, c, per)
	}
	wg.Wait()
	elapsed := time.Since(start).Milliseconds()

	status := protocol.StatusOK
	var err error
	if okCount == 0 {
		status = protocol.StatusError
		err = fmt.Errorf("broadcast %s: all %d targets failed", m.Key, len(m.To))
	}
	resp := protocol.NewResponse(m, status, fmt.Sprintf("broadcast reached %d/%d agents", okCount, len(m.To))).
		WithContext(results).
		WithUsage(tokens, elapsed)
	resp.From = relayID
	resp.LatencyMS = elapsed

	return &Delivery{Status: status, Response: resp, LatencyMS: elapsed, Err: err}
}

// Complete finalizes the in-flight message identified by key: the
// original and resp become a Completion appended to the bounded log
// (oldest evicted), counters and the running latency average update,
// waiters are released, and the completion hook fires outside the lock.
func (b *Bus) Complete(key string, resp *protocol.Message) {
	b.mu.Lock()
	orig, ok := b.inflight[key]
	if !ok {
		b.mu.Unlock()
		b.logger.Warn("completion for unknown message", slog.String("key", key))
		return
	}
	delete(b.inflight, key)

	c := &Completion{Message: orig, Response: resp, CompletedAt: time.Now().UTC()}
	b.completed = append(b.completed, c)
	if len(b.completed) > b.completedCap {
		b.completed = b.completed[len(b.completed)-b.completedCap:]
	}

	status := protocol.StatusError
	if resp != nil {
		status = resp.Status
	}
	if status == protocol.StatusOK {
		b.totalProcessed++
		if resp.LatencyMS > 0 {
			b.latencySamples++
			b.avgLatencyMS += (float64(resp.LatencyMS) - b.avgLatencyMS) / float64(b.latencySamples)
		}
	} else {
		b.totalErrors++
	}

	waiters := b.waiters[key]
	delete(b.waiters, key)
	hook := b.hook
	b.mu.Unlock()

	for _, ch := range waiters {
		ch <- c // buffered; at most one send per waiter
	}
	if hook != nil {
		hook(c)
	}
	b.logger.Info("message completed",
		slog.String("key", key),
		slog.String("status", string(status)),
		slog.Int64("latency_ms", c.latencyMS()))
}

// Await blocks until the message identified by key completes and returns
// its response. Already-completed keys return immediately; keys the bus
// has never seen fail with ErrUnknownKey. Abandoning the wait does not
// cancel the route: the completion is still recorded for later readers.
func (b *Bus) Await(ctx context.Context, key string) (*protocol.Message, error) {
	b.mu.Lock()
	if c := b.lookupCompletedLocked(key); c != nil {
		b.mu.Unlock()
		return c.Response, nil
	}
	if !b.liveLocked(key) {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	ch := make(chan *Completion, 1)
	b.waiters[key] = append(b.waiters[key], ch)
	b.mu.Unlock()

	select {
	case c := <-ch:
		return c.Response, nil
	case <-ctx.Done():
		b.mu.Lock()
		entries := b.waiters[key]
		for i, w := range entries {
			if w == ch {
				b.waiters[key] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		if len(b.waiters[key]) == 0 {
			delete(b.waiters, key)
		}
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Lookup reports what the bus knows about a message key: its completion
// when finished, or pending=true while queued or in flight.
func (b *Bus) Lookup(key string) (c *Completion, pending bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.lookupCompletedLocked(key); c != nil {
		return c, false
	}
	return nil, b.liveLocked(key)
}

// RecentCompleted returns up to limit completions, most recent first.
// limit <= 0 returns the whole log.
func (b *Bus) RecentCompleted(limit int) []*Completion {
	b.mu.Lock()
	defer b.mu.Unlock()
	var result []*Completion
	for i := len(b.completed) - 1; i >= 0; i-- {
		result = append(result, b.completed[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// ActiveConnections reports the status of every registered connector.
func (b *Bus) ActiveConnections() []connector.Status {
	b.mu.Lock()
	conns := make([]connector.Connector, 0, len(b.connectors))
	for _, c := range b.connectors {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	// Status calls happen outside the bus lock.
	statuses := make([]connector.Status, 0, len(conns))
	for _, c := range conns {
		statuses = append(statuses, c.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].AgentID < statuses[j].AgentID })
	return statuses
}

// Stats returns a point-in-time snapshot of bus state.
func (b *Bus) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.connectors))
	for id := range b.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Snapshot{
		Pending:        b.queue.Len(),
		InFlight:       len(b.inflight),
		TotalProcessed: b.totalProcessed,
		TotalErrors:    b.totalErrors,
		AvgLatencyMS:   b.avgLatencyMS,
		ActiveAgents:   ids,
		Connections:    len(ids),
	}
}

func (b *Bus) lookupConnector(agentID string) (connector.Connector, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.connectors[agentID]
	return c, ok
}

// snapshotConnectors copies the registry for iteration outside the lock.
func (b *Bus) snapshotConnectors() []connector.Connector {
	b.mu.Lock()
	defer b.mu.Unlock()
	conns := make([]connector.Connector, 0, len(b.connectors))
	for _, c := range b.connectors {
		conns = append(conns, c)
	}
	return conns
}

func (b *Bus) lookupCompletedLocked(key string) *Completion {
	for i := len(b.completed) - 1; i >= 0; i-- {
		if b.completed[i].Message.Key == key {
			return b.completed[i]
		}
	}
	return nil
}

// liveLocked reports whether key is pending in the queue or in flight.
func (b *Bus) liveLocked(key string) bool {
	if _, ok := b.inflight[key]; ok {
		return true
	}
	for _, q := range b.queue {
		if q.msg.Key == key {
			return true
		}
	}
	return false
}

func (c *Completion) latencyMS() int64 {
	if c.Response == nil {
		return 0
	}
	return c.Response.LatencyMS
}
