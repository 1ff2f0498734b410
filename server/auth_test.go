package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/GoCodeAlone/switchboard/comms"
	"github.com/GoCodeAlone/switchboard/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		Auth: config.AuthConfig{
			AdminUser: "admin",
			AdminPass: string(hash),
			JWTSecret: "test-secret-key-1234567890",
		},
	}
	logger := discardLogger()
	s := New(cfg, "test", logger)
	s.SetBus(comms.New(comms.WithLogger(logger)))
	return s
}

func TestSignAndVerifyJWT(t *testing.T) {
	secret := "my-test-secret"
	token, err := signJWT(secret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	subject, err := verifyJWT(secret, token)
	if err != nil {
		t.Fatalf("verifyJWT: %v", err)
	}
	if subject != "alice" {
		t.Errorf("expected subject 'alice', got %q", subject)
	}
}

func TestVerifyJWT_ExpiredToken(t *testing.T) {
	token, err := signJWT("my-test-secret", "alice", -time.Hour)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}
	if _, err := verifyJWT("my-test-secret", token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifyJWT_BadSignature(t *testing.T) {
	token, _ := signJWT("correct-secret", "alice", time.Hour)
	if _, err := verifyJWT("wrong-secret", token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestVerifyJWT_Malformed(t *testing.T) {
	if _, err := verifyJWT("secret", "not.a.token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestHandleLogin_Success(t *testing.T) {
	s := newTestServer(t)
	s.registerRoutes()

	body := `{"username":"admin","password":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["token"] == "" {
		t.Error("expected non-empty token in response")
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.registerRoutes()

	body := `{"username":"admin","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestHandleLogin_NoPasswordConfigured(t *testing.T) {
	logger := discardLogger()
	s := New(config.Config{Auth: config.AuthConfig{AdminUser: "admin"}}, "test", logger)
	s.SetBus(comms.New(comms.WithLogger(logger)))
	s.registerRoutes()

	// An empty password hash must reject every login attempt.
	body := `{"username":"admin","password":""}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	s := newTestServer(t)
	s.registerRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	s := newTestServer(t)
	s.registerRoutes()

	// Get a token first
	loginBody := `{"username":"admin","password":"secret"}`
	loginReq := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(loginBody))
	loginRR := httptest.NewRecorder()
	s.mux.ServeHTTP(loginRR, loginReq)
	if loginRR.Code != http.StatusOK {
		t.Fatalf("login failed: %d", loginRR.Code)
	}
	var loginResp map[string]string
	json.NewDecoder(loginRR.Body).Decode(&loginResp) //nolint:errcheck
	token := loginResp["token"]

	// Use token to access protected endpoint
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// The token subject flows through to /api/auth/me
	meReq := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+token)
	meRR := httptest.NewRecorder()
	s.mux.ServeHTTP(meRR, meReq)

	if meRR.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", meRR.Code)
	}
	var me map[string]string
	json.NewDecoder(meRR.Body).Decode(&me) //nolint:errcheck
	if me["username"] != "admin" {
		t.Errorf("me username = %q, want admin", me["username"])
	}
}
