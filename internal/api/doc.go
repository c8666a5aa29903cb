// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package api serves the ops HTTP endpoints: liveness, readiness and
// Prometheus metrics. It is built on chi with per-IP rate limiting from
// httprate and carries no application routes.
package api
