// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/config"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{ListenAddr: ":0", RateLimit: 100, RateLimitWindow: time.Minute}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:41000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := NewRouter(fakePinger{err: errors.New("down")}, testServerConfig())

	rec := get(t, router, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "alive" {
		t.Errorf("status = %q, want alive", body.Status)
	}
	if body.StoreConnected != nil {
		t.Error("liveness should not report store connectivity")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		wantCode   int
		wantStatus string
	}{
		{"store reachable", fakePinger{}, http.StatusOK, "ready"},
		{"store down", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "not_ready"},
		{"no store", nil, http.StatusServiceUnavailable, "not_ready"},
		{"memory store", audit.NewMemoryStore(), http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, NewRouter(tt.store, testServerConfig()), "/readyz")
			if rec.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.StoreConnected == nil || *body.StoreConnected != (tt.wantCode == http.StatusOK) {
				t.Errorf("store_connected = %v", body.StoreConnected)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, NewRouter(fakePinger{}, testServerConfig()), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing go_goroutines")
	}
}

func TestRequestIDHeaderBecomesCorrelationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()

	NewRouter(fakePinger{}, testServerConfig()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimitByIP(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 2
	router := NewRouter(fakePinger{}, cfg)

	for i := 0; i < 2; i++ {
		if rec := get(t, router, "/healthz"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := get(t, router, "/healthz"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 0
	router := NewRouter(fakePinger{}, cfg)

	for i := 0; i < 20; i++ {
		if rec := get(t, router, "/healthz"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestNewServer(t *testing.T) {
	cfg := testServerConfig()
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = 30 * time.Second

	srv := NewServer(fakePinger{}, cfg)
	if srv.Addr != ":0" || srv.ReadTimeout != 5*time.Second || srv.WriteTimeout != 30*time.Second {
		t.Errorf("server = addr %q read %v write %v", srv.Addr, srv.ReadTimeout, srv.WriteTimeout)
	}
	if srv.Handler == nil {
		t.Error("server handler is nil")
	}
}
