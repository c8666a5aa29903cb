// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package secevent manages security events raised by integrity verification
// and anomaly detection.
//
// Events are append-only. Create always stamps a fresh id and detection
// time and stores the event unresolved. Resolve is the only mutation and is
// one-way; repeating it is a no-op. Every created event is logged through
// logging.FindingLogger and published to the event bus when one is
// configured.
package secevent
