// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditkeep/internal/logging"
)

// readyTimeout bounds the store ping behind /readyz.
const readyTimeout = 2 * time.Second

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status         string    `json:"status"`
	StoreConnected *bool     `json:"store_connected,omitempty"`
	Uptime         float64   `json:"uptime_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// Handler serves the health endpoints.
type Handler struct {
	store     Pinger
	startTime time.Time
}

// NewHandler creates a handler. store may be nil, in which case the
// service never reports ready.
func NewHandler(store Pinger) *Handler {
	return &Handler{store: store, startTime: time.Now()}
}

// Healthz is the liveness probe. It does not touch dependencies.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &HealthResponse{
		Status:    "alive",
		Uptime:    time.Since(h.startTime).Seconds(),
		Timestamp: time.Now().UTC(),
	})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	connected := false
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := h.store.Ping(ctx)
		cancel()
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		}
		connected = err == nil
	}

	status, code := "ready", http.StatusOK
	if !connected {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	respondJSON(w, code, &HealthResponse{
		Status:         status,
		StoreConnected: &connected,
		Uptime:         time.Since(h.startTime).Seconds(),
		Timestamp:      time.Now().UTC(),
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
