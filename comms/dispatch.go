package comms

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/GoCodeAlone/switchboard/crypt"
	"github.com/GoCodeAlone/switchboard/protocol"
)

const (
	defaultWorkers  = 4
	drainInterval   = 250 * time.Millisecond
	receiveInterval = 250 * time.Millisecond
)

// Dispatcher drives the bus: workers drain the pending queue, decrypt
// incoming payloads at the boundary, route, re-encrypt responses to
// messages that arrived encrypted, and complete. A separate loop polls
// registered connectors for agent-originated messages and enqueues them.
type Dispatcher struct {
	bus     *Bus
	keyring *crypt.Keyring
	mode    crypt.Mode
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count
// (defaulted when <= 0). keyring may be nil when encryption is off; mode
// selects how responses to encrypted requests are re-encrypted.
func NewDispatcher(bus *Bus, keyring *crypt.Keyring, mode crypt.Mode, workers int) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if mode == "" {
		mode = crypt.ModeSymmetric
	}
	return &Dispatcher{
		bus:     bus,
		keyring: keyring,
		mode:    mode,
		workers: workers,
	}
}

// Start launches the worker and connector-poll loops. Stop ends them.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.loop(ctx)
	}
	d.wg.Add(1)
	go d.pollConnectors(ctx)

	d.bus.logger.Info("dispatcher started", slog.Int("workers", d.workers))
}

// Stop cancels the loops and waits for in-flight work to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.bus.logger.Info("dispatcher stopped")
}

// loop drains the queue whenever woken by an enqueue or the ticker.
func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		d.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-d.bus.wake:
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		m := d.bus.Dequeue()
		if m == nil {
			return
		}
		d.handle(ctx, m)
	}
}

// handle moves one message through decrypt, route, re-encrypt, complete.
// Every dequeued message ends in exactly one completion.
func (d *Dispatcher) handle(ctx context.Context, m *protocol.Message) {
	wasEncrypted := m.Encrypted
	if wasEncrypted {
		if d.keyring == nil {
			d.bus.Complete(m.Key, protocol.NewResponse(m, protocol.StatusError, "encrypted message but no keyring configured"))
			return
		}
		if err := d.keyring.DecryptMessage(m); err != nil {
			d.bus.logger.Warn("boundary decrypt failed",
				slog.String("key", m.Key),
				slog.Any("err", err))
			d.bus.Complete(m.Key, protocol.NewResponse(m, protocol.StatusError, "decrypt failed: "+err.Error()))
			return
		}
	}

	del := d.bus.Route(ctx, m)
	if del.Err != nil {
		d.bus.logger.Warn("route failed",
			slog.String("key", m.Key),
			slog.Any("err", del.Err))
	}

	resp := del.Response
	if resp == nil {
		resp = protocol.NewResponse(m, protocol.StatusError, del.Err.Error())
		resp.LatencyMS = del.LatencyMS
	}
	if wasEncrypted && resp.Status == protocol.StatusOK {
		if err := d.keyring.EncryptMessage(resp, d.mode); err != nil {
			d.bus.Complete(m.Key, protocol.NewResponse(m, protocol.StatusError, "encrypt response: "+err.Error()))
			return
		}
	}
	d.bus.Complete(m.Key, resp)
}

// pollConnectors picks up agent-originated messages from every
// registered connector and feeds them into the queue.
func (d *Dispatcher) pollConnectors(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(receiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range d.bus.snapshotConnectors() {
				m, err := c.Receive(ctx)
				if err != nil {
					d.bus.logger.Debug("connector receive", slog.Any("err", err))
					continue
				}
				if m == nil {
					continue
				}
				if err := d.bus.Enqueue(m); err != nil {
					d.bus.logger.Warn("agent message rejected",
						slog.String("from", m.From),
						slog.Any("err", err))
				}
			}
		}
	}
}
