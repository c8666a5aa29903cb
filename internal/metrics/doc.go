// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and
are exposed at /metrics by the ops HTTP server:

	curl http://localhost:9464/metrics

# Available Metrics

Store Metrics:
  - auditkeep_store_operation_duration_seconds: store call latency (histogram)
    Labels: operation, table
  - auditkeep_store_operation_errors_total: store failures (counter)
    Labels: operation, table, error_type

Hash Chain Metrics:
  - auditkeep_chain_appends_total: append attempts (counter)
    Labels: result (appended, duplicate, error)
  - auditkeep_chain_append_duration_seconds: append latency (histogram)
  - auditkeep_chain_queue_depth: pending writer requests (gauge)
  - auditkeep_chain_head_sequence: sequence of the chain head (gauge)

Verification Metrics:
  - auditkeep_verification_runs_total: bulk runs (counter)
    Labels: result (success, error, cancelled)
  - auditkeep_verification_records_total: checked records (counter)
    Labels: outcome (verified, tampered, missing_hash)
  - auditkeep_integrity_score: score of the last run (gauge)

Detection and Security Events:
  - auditkeep_anomaly_checks_total: check executions (counter)
    Labels: check, result (clean, flagged, error)
  - auditkeep_security_events_created_total (counter)
    Labels: event_type, severity
  - auditkeep_security_events_resolved_total (counter)
  - auditkeep_security_events_published_total (counter)
    Labels: result

Archival Metrics:
  - auditkeep_archival_jobs_total: jobs by terminal status (counter)
  - auditkeep_archival_records_archived_total, auditkeep_archival_records_deleted_total
    Labels: table
  - auditkeep_archival_delete_batches_total (counter)
  - auditkeep_archival_bytes_written_total (counter)
  - auditkeep_records_restored_total (counter)

Circuit Breaker Metrics:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - circuit_breaker_requests_total, circuit_breaker_state_transitions_total

# Usage

	start := time.Now()
	n, err := store.CountRecords(ctx, filter)
	metrics.RecordStoreOperation("count", "audit_logs", time.Since(start), err)

# Thread Safety

All collectors are safe for concurrent use.
*/
package metrics
