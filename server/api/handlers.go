package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/switchboard/archive"
	"github.com/GoCodeAlone/switchboard/comms"
	"github.com/GoCodeAlone/switchboard/connector"
	"github.com/GoCodeAlone/switchboard/protocol"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Bus     *comms.Bus
	Archive archive.Store // nil when the archive is disabled
	Logger  *slog.Logger
	Version string
	StartAt int64 // unix timestamp of server start
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/messages", h.submitMessage)
	mux.HandleFunc("GET /api/messages/{key}", h.getMessage)
	mux.HandleFunc("GET /api/messages/{key}/wait", h.waitMessage)

	mux.HandleFunc("POST /api/agents", h.registerAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", h.unregisterAgent)

	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/completed", h.listCompleted)
	mux.HandleFunc("GET /api/connections", h.listConnections)
	mux.HandleFunc("GET /api/archive", h.listArchived)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// limitParam parses the limit query parameter, falling back to def.
func limitParam(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			return n
		}
	}
	return def
}

// --- Message handlers ---

func (h *Handlers) submitMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	m, err := protocol.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Bus.Enqueue(m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"key":    m.Key,
		"status": "queued",
	})
}

func (h *Handlers) getMessage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	c, pending := h.Bus.Lookup(key)
	switch {
	case c != nil:
		writeJSON(w, http.StatusOK, c)
	case pending:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"key":    key,
			"status": "pending",
		})
	default:
		// The in-memory log is bounded; old completions may only
		// survive in the archive.
		if h.Archive != nil {
			if arch, err := h.Archive.Get(key); err == nil {
				writeJSON(w, http.StatusOK, arch)
				return
			}
		}
		writeError(w, http.StatusNotFound, "message not found")
	}
}

func (h *Handlers) waitMessage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	ctx := r.Context()
	if t := r.URL.Query().Get("timeout"); t != "" {
		if d, err := time.ParseDuration(t); err == nil && d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	resp, err := h.Bus.Await(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, comms.ErrUnknownKey):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			writeError(w, http.StatusGatewayTimeout, "timed out waiting for completion")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Agent handlers ---

// registerAgentRequest is the body accepted by POST /api/agents.
type registerAgentRequest struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	URL     string   `json:"url,omitempty"`
	Replies []string `json:"replies,omitempty"`
}

func (h *Handlers) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "agent id is required")
		return
	}

	var conn connector.Connector
	if req.URL != "" {
		conn = connector.NewHTTP(connector.HTTPConfig{
			AgentID:   req.ID,
			AgentType: req.Type,
			Endpoint:  req.URL,
		})
	} else {
		conn = connector.NewScript(req.ID, req.Type, req.Replies...)
	}
	if err := conn.Connect(r.Context(), ""); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Bus.Register(req.ID, conn)
	h.Logger.Info("agent registered via api", slog.String("agent", req.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"agent_id": req.ID})
}

func (h *Handlers) unregisterAgent(w http.ResponseWriter, r *http.Request) {
	h.Bus.Unregister(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// --- Snapshot handlers ---

func (h *Handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Bus.Stats())
}

func (h *Handlers) listCompleted(w http.ResponseWriter, r *http.Request) {
	out := h.Bus.RecentCompleted(limitParam(r, 50))
	if out == nil {
		out = []*comms.Completion{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) listConnections(w http.ResponseWriter, _ *http.Request) {
	conns := h.Bus.ActiveConnections()
	if conns == nil {
		conns = []connector.Status{}
	}
	writeJSON(w, http.StatusOK, conns)
}

func (h *Handlers) listArchived(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	out, err := h.Archive.Recent(limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		out = []*comms.Completion{}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.Version,
		"uptime_seconds": time.Now().Unix() - h.StartAt,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
