package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/GoCodeAlone/switchboard/protocol"
)

const defaultHTTPAgentType = "http"

// HTTPConfig holds configuration for an HTTP connector.
type HTTPConfig struct {
	AgentID    string
	AgentType  string
	Endpoint   string // agent URL receiving message POSTs
	HTTPClient *http.Client
}

// HTTP forwards relay traffic to a remote agent as JSON over HTTP. A
// Process round trip POSTs the request and decodes the agent's response
// message; Send POSTs and discards the body.
type HTTP struct {
	Base
	cfg HTTPConfig
}

// NewHTTP creates an HTTP connector with the given config.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.AgentType == "" {
		cfg.AgentType = defaultHTTPAgentType
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &HTTP{
		Base: NewBase(cfg.AgentID, cfg.AgentType),
		cfg:  cfg,
	}
}

// Process POSTs the request to the agent endpoint and returns the
// decoded response message.
func (h *HTTP) Process(ctx context.Context, m *protocol.Message) (*protocol.Message, error) {
	body, err := h.post(ctx, m)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("agent %s: bad response: %w", h.cfg.AgentID, err)
	}
	return resp, nil
}

// Send POSTs the message and ignores whatever the agent answers.
func (h *HTTP) Send(ctx context.Context, m *protocol.Message) error {
	_, err := h.post(ctx, m)
	return err
}

func (h *HTTP) post(ctx context.Context, m *protocol.Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("agent %s: marshal message: %w", h.cfg.AgentID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("agent %s: create request: %w", h.cfg.AgentID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent %s: send request: %w", h.cfg.AgentID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("agent %s: read response: %w", h.cfg.AgentID, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("agent %s: status %d: %s", h.cfg.AgentID, resp.StatusCode, string(body))
	}
	return body, nil
}
