package comms

import (
	"context"
	"testing"
	"time"

	"github.com/GoCodeAlone/switchboard/connector"
	"github.com/GoCodeAlone/switchboard/crypt"
	"github.com/GoCodeAlone/switchboard/protocol"
)

func startDispatcher(t *testing.T, bus *Bus, kr *crypt.Keyring) *Dispatcher {
	t.Helper()
	d := NewDispatcher(bus, kr, crypt.ModeSymmetric, 2)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return d
}

func TestDispatcher_EndToEnd(t *testing.T) {
	bus := newTestBus()
	bus.Register("claude", connector.NewScript("claude", "assistant", "Test response"))
	startDispatcher(t, bus, nil)

	req := protocol.NewRequest("gpt", "claude", "Test message")
	if err := bus.Enqueue(req); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := bus.Await(ctx, req.Key)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if resp.Payload.Content != "Test response" {
		t.Errorf("response = %q, want %q", resp.Payload.Content, "Test response")
	}
	if resp.Key != req.Key {
		t.Errorf("response key = %q, want %q", resp.Key, req.Key)
	}

	st := bus.Stats()
	if st.TotalProcessed != 1 {
		t.Errorf("total processed = %d, want 1", st.TotalProcessed)
	}
	if st.Pending != 0 || st.InFlight != 0 {
		t.Errorf("pending/inflight = %d/%d, want 0/0", st.Pending, st.InFlight)
	}
}

func TestDispatcher_UnroutableCompletesAsError(t *testing.T) {
	bus := newTestBus()
	startDispatcher(t, bus, nil)

	req := protocol.NewRequest("gpt", "nobody", "hello?")
	if err := bus.Enqueue(req); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := bus.Await(ctx, req.Key)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if resp.Status != protocol.StatusError {
		t.Errorf("status = %q, want error", resp.Status)
	}
	if bus.Stats().TotalErrors != 1 {
		t.Errorf("total errors = %d, want 1", bus.Stats().TotalErrors)
	}
}

func TestDispatcher_EncryptedRoundTrip(t *testing.T) {
	kr := crypt.NewKeyring()
	key, err := crypt.NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey: %v", err)
	}
	kr.SetSecret(key)

	bus := newTestBus()
	bus.Register("claude", connector.NewScript("claude", "assistant", "secret answer"))
	startDispatcher(t, bus, kr)

	req := protocol.NewRequest("gpt", "claude", "secret question")
	if err := kr.EncryptMessage(req, crypt.ModeSymmetric); err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	if err := bus.Enqueue(req); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := bus.Await(ctx, req.Key)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	// The response to an encrypted request comes back encrypted.
	if !resp.Encrypted {
		t.Fatal("response is not encrypted")
	}
	if err := kr.DecryptMessage(resp); err != nil {
		t.Fatalf("DecryptMessage: %v", err)
	}
	if resp.Payload.Content != "secret answer" {
		t.Errorf("decrypted response = %q, want %q", resp.Payload.Content, "secret answer")
	}
}

func TestDispatcher_DecryptFailureCompletesAsError(t *testing.T) {
	sender := crypt.NewKeyring()
	senderKey, _ := crypt.NewSecretKey()
	sender.SetSecret(senderKey)

	relay := crypt.NewKeyring()
	relayKey, _ := crypt.NewSecretKey() // different key
	relay.SetSecret(relayKey)

	bus := newTestBus()
	bus.Register("claude", connector.NewScript("claude", "assistant"))
	startDispatcher(t, bus, relay)

	req := protocol.NewRequest("gpt", "claude", "garbled")
	if err := sender.EncryptMessage(req, crypt.ModeSymmetric); err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	if err := bus.Enqueue(req); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := bus.Await(ctx, req.Key)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if resp.Status != protocol.StatusError {
		t.Errorf("status = %q, want error", resp.Status)
	}
	if bus.Stats().TotalErrors != 1 {
		t.Errorf("total errors = %d, want 1", bus.Stats().TotalErrors)
	}
}

func TestDispatcher_PollsConnectorOutbox(t *testing.T) {
	bus := newTestBus()
	claude := connector.NewScript("claude", "assistant")
	gpt := connector.NewScript("gpt", "assistant", "noted")
	bus.Register("claude", claude)
	bus.Register("gpt", gpt)
	startDispatcher(t, bus, nil)

	// claude proactively asks gpt something; the poll loop picks it up.
	out := protocol.NewRequest("claude", "gpt", "are you there?")
	if err := claude.Outbound(out); err != nil {
		t.Fatalf("Outbound: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, _ := bus.Lookup(out.Key); c != nil {
			if c.Response.Payload.Content != "noted" {
				t.Errorf("response = %q, want noted", c.Response.Payload.Content)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("agent-originated message never completed")
}

func TestDispatcher_BroadcastEndToEnd(t *testing.T) {
	bus := newTestBus()
	bus.Register("claude", connector.NewScript("claude", "assistant", "claude ack"))
	bus.Register("gemini", connector.NewScript("gemini", "assistant", "gemini ack"))
	startDispatcher(t, bus, nil)

	bc := protocol.NewBroadcast("gpt", "status check", []string{"claude", "gemini"}, protocol.PriorityCritical)
	if err := bus.Enqueue(bc); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := bus.Await(ctx, bc.Key)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(resp.Payload.Context) != 2 {
		t.Errorf("aggregate entries = %d, want 2", len(resp.Payload.Context))
	}

	// One broadcast, one completion.
	st := bus.Stats()
	if st.TotalProcessed != 1 {
		t.Errorf("total processed = %d, want 1", st.TotalProcessed)
	}
}
