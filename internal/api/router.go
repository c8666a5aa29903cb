// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/auditkeep/internal/config"
	"github.com/tomtom215/auditkeep/internal/logging"
)

// Pinger reports whether the audit store is reachable. audit.Store
// implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the ops router:
//
//	GET /healthz  liveness, always 200 while the process runs
//	GET /readyz   200 when the store answers a ping, 503 otherwise
//	GET /metrics  Prometheus exposition
func NewRouter(store Pinger, cfg config.ServerConfig) http.Handler {
	h := NewHandler(store)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders())
	r.Use(RateLimitByIP(cfg.RateLimit, cfg.RateLimitWindow))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer wraps the router in an http.Server with the configured timeouts.
func NewServer(store Pinger, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(store, cfg),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

// RateLimitByIP limits each client IP to requests per window. A
// non-positive limit disables rate limiting.
func RateLimitByIP(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(requests, window)
}

// RequestIDWithLogging runs chi's RequestID middleware and uses the request
// id as the logging correlation id.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withLogging := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.ContextWithCorrelationID(r.Context(), chimiddleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		return chimiddleware.RequestID(withLogging)
	}
}

// SecurityHeaders sets the headers every ops response carries.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
