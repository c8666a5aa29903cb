// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for journal operations
var (
	journalAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_journal_appends_total",
		Help: "Total number of chain journal append operations",
	})

	journalRemovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_journal_removes_total",
		Help: "Total number of chain journal entries removed after processing",
	})

	journalFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_journal_failed_attempts_total",
		Help: "Total number of failed attempts recorded against journal entries",
	})

	// journalPendingEntries is the current number of pending journal entries.
	journalPendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chain_journal_pending_entries",
		Help: "Current number of pending chain journal entries",
	})

	journalAppendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chain_journal_append_latency_seconds",
		Help:    "Chain journal append latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	journalWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_journal_write_failures_total",
		Help: "Total number of failed chain journal writes",
	})

	// journalReplayedEntries counts entries replayed on startup.
	journalReplayedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_journal_replayed_entries_total",
		Help: "Total number of chain journal entries replayed on startup",
	})

	journalGCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_journal_gc_runs_total",
		Help: "Total number of BadgerDB value log GC runs",
	})
)
