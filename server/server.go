// Package server exposes the relay over HTTP: message submission and
// tracking, read-only snapshots, JWT auth, and SSE completion events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/switchboard/archive"
	"github.com/GoCodeAlone/switchboard/comms"
	"github.com/GoCodeAlone/switchboard/config"
	"github.com/GoCodeAlone/switchboard/server/api"
	"github.com/GoCodeAlone/switchboard/server/sse"
)

// Server is the Switchboard HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	bus     *comms.Bus
	archive archive.Store
	hub     *sse.Hub

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		startTime: time.Now(),
		version:   ver,
	}
	s.hub = sse.NewHub(logger, func(token string) error {
		_, err := verifyJWT(s.jwtSecret(), token)
		return err
	})
	return s
}

// SetBus attaches the message bus to the server.
func (s *Server) SetBus(bus *comms.Bus) {
	s.bus = bus
}

// SetArchive attaches the durable completion archive.
func (s *Server) SetArchive(store archive.Store) {
	s.archive = store
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8765"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Bus:     s.bus,
		Archive: s.archive,
		Logger:  s.logger,
		Version: s.version,
		StartAt: s.startTime.Unix(),
	}

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE auth is handled by the hub via query token because
	// EventSource can't set headers
	s.mux.Handle("GET /events", s.hub)

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// BroadcastEvent sends a typed event to all connected SSE clients.
func (s *Server) BroadcastEvent(eventType string, payload any) {
	s.hub.Broadcast(sse.Event{Type: eventType, Payload: payload})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
