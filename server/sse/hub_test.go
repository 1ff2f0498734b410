package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// streamLines reads "data:" payloads off an SSE stream into a channel.
func streamLines(body io.Reader) <-chan string {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		br := bufio.NewReader(body)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}()
	return lines
}

func nextLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case l, ok := <-lines:
		if !ok {
			t.Fatal("stream closed before event arrived")
		}
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ""
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d, have %d", n, hub.ClientCount())
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	lines := streamLines(resp.Body)
	if first := nextLine(t, lines); !strings.Contains(first, "connected") {
		t.Fatalf("first event = %q, want connected", first)
	}

	waitForClients(t, hub, 1)
	hub.Broadcast(Event{Type: "completion", Payload: map[string]string{"key": "msg-1"}})

	var ev Event
	if err := json.Unmarshal([]byte(nextLine(t, lines)), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != "completion" {
		t.Errorf("event type = %q, want completion", ev.Type)
	}
}

func TestHub_RequiresToken(t *testing.T) {
	hub := NewHub(discardLogger(), func(token string) error {
		if token != "good" {
			return errors.New("bad token")
		}
		return nil
	})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "?token=good")
	if err != nil {
		t.Fatalf("connect with token: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("valid token: expected 200, got %d", resp2.StatusCode)
	}
}

func TestHub_ClientLifecycle(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForClients(t, hub, 1)

	resp.Body.Close()
	waitForClients(t, hub, 0)
}
