// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the audit pipeline:
// - record store latency and errors
// - hash chain appends and queue depth
// - integrity verification outcomes
// - anomaly detection and security events
// - archival jobs, exports and deletes
// - circuit breakers

var (
	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditkeep_store_operation_duration_seconds",
			Help:    "Duration of record store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_store_operation_errors_total",
			Help: "Total number of record store errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Hash Chain Metrics
	ChainAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_chain_appends_total",
			Help: "Total number of hash chain append attempts",
		},
		[]string{"result"}, // "appended", "duplicate", "error"
	)

	ChainAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditkeep_chain_append_duration_seconds",
			Help:    "Duration of a single hash chain append in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	ChainQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditkeep_chain_queue_depth",
			Help: "Number of append requests waiting for the chain writer",
		},
	)

	ChainHeadSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditkeep_chain_head_sequence",
			Help: "Sequence number of the current chain head",
		},
	)

	// Verification Metrics
	VerificationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_verification_runs_total",
			Help: "Total number of bulk verification runs",
		},
		[]string{"result"}, // "success", "error", "cancelled"
	)

	VerificationRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_verification_records_total",
			Help: "Records checked by bulk verification by outcome",
		},
		[]string{"outcome"}, // "verified", "tampered", "missing_hash"
	)

	IntegrityScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditkeep_integrity_score",
			Help: "Integrity score (0-100) of the most recent bulk verification",
		},
	)

	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditkeep_verification_duration_seconds",
			Help:    "Duration of bulk verification runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// Detection Metrics
	AnomalyChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_anomaly_checks_total",
			Help: "Total number of anomaly check executions",
		},
		[]string{"check", "result"}, // result: "clean", "flagged", "error"
	)

	// Security Event Metrics
	SecurityEventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_security_events_created_total",
			Help: "Total number of security events created",
		},
		[]string{"event_type", "severity"},
	)

	SecurityEventsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditkeep_security_events_resolved_total",
			Help: "Total number of security events resolved",
		},
	)

	SecurityEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_security_events_published_total",
			Help: "Security events published to the message bus",
		},
		[]string{"result"}, // "success", "failure"
	)

	RecordsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_records_consumed_total",
			Help: "Audit records taken from the intake topic",
		},
		[]string{"result"}, // "recorded", "rejected", "retried"
	)

	// Archival Metrics
	ArchivalJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_archival_jobs_total",
			Help: "Total number of archival jobs by terminal status",
		},
		[]string{"status"},
	)

	ArchivalJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditkeep_archival_job_duration_seconds",
			Help:    "Duration of archival jobs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
	)

	ArchivalRecordsArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_archival_records_archived_total",
			Help: "Total number of records exported to archive files",
		},
		[]string{"table"},
	)

	ArchivalRecordsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_archival_records_deleted_total",
			Help: "Total number of records deleted past retention",
		},
		[]string{"table"},
	)

	ArchivalDeleteBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditkeep_archival_delete_batches_total",
			Help: "Total number of delete batches executed",
		},
	)

	ArchivalBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditkeep_archival_bytes_written_total",
			Help: "Total bytes written to archive files",
		},
	)

	RecordsRestored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditkeep_records_restored_total",
			Help: "Total number of records restored from archives",
		},
		[]string{"table"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auditkeep_app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordStoreOperation records a store operation metric.
func RecordStoreOperation(operation, table string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		StoreOperationErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordChainAppend records the outcome of one chain append.
func RecordChainAppend(result string, duration time.Duration) {
	ChainAppendsTotal.WithLabelValues(result).Inc()
	if result == "appended" {
		ChainAppendDuration.Observe(duration.Seconds())
	}
}

// RecordVerification records a completed bulk verification run.
func RecordVerification(verified, tampered, missing int64, score float64, duration time.Duration) {
	VerificationRuns.WithLabelValues("success").Inc()
	VerificationRecords.WithLabelValues("verified").Add(float64(verified))
	VerificationRecords.WithLabelValues("tampered").Add(float64(tampered))
	VerificationRecords.WithLabelValues("missing_hash").Add(float64(missing))
	IntegrityScore.Set(score)
	VerificationDuration.Observe(duration.Seconds())
}

// RecordVerificationFailure records a bulk verification run that did not finish.
func RecordVerificationFailure(cancelled bool) {
	if cancelled {
		VerificationRuns.WithLabelValues("cancelled").Inc()
		return
	}
	VerificationRuns.WithLabelValues("error").Inc()
}

// RecordAnomalyCheck records one anomaly check execution.
func RecordAnomalyCheck(check string, flagged bool, err error) {
	result := "clean"
	switch {
	case err != nil:
		result = "error"
	case flagged:
		result = "flagged"
	}
	AnomalyChecks.WithLabelValues(check, result).Inc()
}

// RecordSecurityEvent records a created security event.
func RecordSecurityEvent(eventType, severity string) {
	SecurityEventsCreated.WithLabelValues(eventType, severity).Inc()
}

// RecordSecurityEventPublish records a bus publication attempt.
func RecordSecurityEventPublish(err error) {
	if err != nil {
		SecurityEventsPublished.WithLabelValues("failure").Inc()
		return
	}
	SecurityEventsPublished.WithLabelValues("success").Inc()
}

// RecordIntake records the outcome of one consumed audit record message.
func RecordIntake(result string) {
	RecordsConsumed.WithLabelValues(result).Inc()
}

// RecordArchivalJob records a finished archival job.
func RecordArchivalJob(status string, duration time.Duration) {
	ArchivalJobs.WithLabelValues(status).Inc()
	ArchivalJobDuration.Observe(duration.Seconds())
}

// BreakerStateValue maps a breaker state name to its gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
