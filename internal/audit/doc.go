// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package audit holds the domain types and persistence of the audit
// integrity pipeline.
//
// # Overview
//
// Five collections are persisted:
//   - audit_logs: immutable audit records written by the CRUD layer
//   - audit_log_hashes: one hash chain entry per audit record
//   - audit_security_events: findings from verification and detection
//   - audit_retention_policies: how long each table is kept
//   - audit_archival_jobs: history of archival runs
//
// Store is implemented by DuckDBStore for production and MemoryStore for
// tests and development. Both honour the same contract: time ranges are
// half-open, point lookups return ErrNotFound, and native failures come
// back as *StoreError.
//
// # Recording
//
// The Recorder validates an incoming record, stores it and submits it to
// the hash chain writer:
//
//	rec := &audit.Record{
//	    TableName: "permits",
//	    RecordID:  permitID,
//	    Action:    audit.ActionUpdate,
//	    OldValues: before,
//	    NewValues: after,
//	    ChangedBy: actorID,
//	    IPAddress: clientIP,
//	}
//	hash, err := recorder.Record(ctx, rec)
//
// # Errors
//
// Use errors.Is with ErrNotFound, ErrValidation, ErrInvalidFormat, ErrStore
// and ErrIO. Integrity mismatches are never errors; they are reported in
// verification results.
package audit
