// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package eventbus publishes security events to a watermill topic so other
// systems (alerting, SIEM forwarders) can react to findings.
//
// Two backends are supported:
//   - memory: watermill GoChannel, in-process. Used for development, tests
//     and single-binary deployments that consume events with Subscribe.
//   - nats: watermill-nats over core NATS. Each message carries the event id
//     as Nats-Msg-Id.
//
// Publishing runs behind a circuit breaker (see package breaker). A failed
// publication is logged and returned; the caller decides whether it matters.
// The security event manager treats it as non-fatal.
//
// In the other direction, Intake consumes audit records from a second topic
// and passes them one at a time to audit.Recorder, which stores and chains
// them. Records are chained in the order the subscriber delivers them.
package eventbus
