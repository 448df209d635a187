package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/storefront/internal/health"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, backendUp bool) (*Server, *health.ProbeManager) {
	t.Helper()
	pm := health.NewProbeManager("1.0.0")
	pm.AddChecker(health.NewBackendChecker(pingFunc(func(context.Context) error {
		if backendUp {
			return nil
		}
		return errors.New("connection refused")
	}), "http://api/"))

	reg, m := metrics.NewRegistry()
	m.RecordStatus("authenticated")

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Request-ID", log.RequestID(r.Context()))
		_, _ = io.WriteString(w, "storefront home")
	})

	s := NewServer(Options{App: app, Probes: pm, Gatherer: reg, Logger: log.Discard()}, Config{Address: "127.0.0.1:0"})
	return s, pm
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(Options{Logger: log.Discard()}, Config{Address: ":3000"})

	if s.shutdownTimeout != 10*time.Second {
		t.Errorf("default shutdown timeout: expected 10s, got %v", s.shutdownTimeout)
	}
	if s.httpServer.ReadTimeout != 30*time.Second {
		t.Errorf("default read timeout: expected 30s, got %v", s.httpServer.ReadTimeout)
	}
	if s.httpServer.WriteTimeout != 30*time.Second {
		t.Errorf("default write timeout: expected 30s, got %v", s.httpServer.WriteTimeout)
	}
	if s.httpServer.IdleTimeout != 60*time.Second {
		t.Errorf("default idle timeout: expected 60s, got %v", s.httpServer.IdleTimeout)
	}
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		backend  bool
		path     string
		wantCode int
		contains string
	}{
		{"app at root", true, "/", http.StatusOK, "storefront home"},
		{"app catch-all", true, "/orders", http.StatusOK, "storefront home"},
		{"liveness", false, "/health/live", http.StatusOK, `"status":"healthy"`},
		{"readiness backend up", true, "/health/ready", http.StatusOK, `"backend-api"`},
		{"readiness backend down", false, "/health/ready", http.StatusServiceUnavailable, `"unhealthy"`},
		{"healthz maps to readiness", false, "/healthz", http.StatusServiceUnavailable, `"unhealthy"`},
		{"startup before start", true, "/health/startup", http.StatusServiceUnavailable, `"unhealthy"`},
		{"metrics", true, "/metrics", http.StatusOK, "storefront_status_transitions_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.backend)
			rec := get(t, s.Handler(), tt.path, nil)
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s: code = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("GET %s: body %q does not contain %q", tt.path, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := get(t, s.Handler(), "/", nil)
	id := rec.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatal("expected a generated request id")
	}
	if rec.Header().Get("X-Seen-Request-ID") != id {
		t.Error("app should see the same request id in its context")
	}

	const given = "0f8fad5b-d9cb-469f-a165-70867728950e"
	rec = get(t, s.Handler(), "/", http.Header{RequestIDHeader: {given}})
	if rec.Header().Get(RequestIDHeader) != given {
		t.Errorf("incoming request id should be kept, got %q", rec.Header().Get(RequestIDHeader))
	}

	rec = get(t, s.Handler(), "/", http.Header{RequestIDHeader: {"<script>"}})
	if rec.Header().Get(RequestIDHeader) == "<script>" {
		t.Error("malformed request id should be replaced")
	}
}

func TestServeAndShutdown(t *testing.T) {
	s, pm := newTestServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !pm.IsInitialized() {
		if time.Now().After(deadline) {
			t.Fatal("server never marked itself initialized")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if !s.IsShuttingDown() || !pm.IsShuttingDown() {
		t.Error("shutdown should mark the server and the probes")
	}

	rec := get(t, s.Handler(), "/health/ready", nil)
	var body health.ProbeResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != health.StatusUnhealthy {
		t.Errorf("readiness after shutdown = %v, want unhealthy", body.Status)
	}
}
