// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package main is the entry point for the Auditkeep server.

Auditkeep keeps an application's audit trail tamper-evident and bounded in
size. Records written through audit.Recorder are linked into a SHA-256 (or
SHA3/BLAKE2b) hash chain by a single writer. Records published to
EVENTS_RECORDS_TOPIC are consumed and passed to the same recorder. Chained
records are verified on a schedule, scanned for anomalies, and archived or
deleted according to retention policies.

# Application Architecture

	RootSupervisor ("auditkeep")
	├── DataSupervisor ("data-layer")
	│   ├── Chain writer (single goroutine, replays the BadgerDB journal)
	│   ├── Journal GC (if CHAIN_JOURNAL_ENABLED)
	│   └── Record intake (if EVENTS_RECORDS_TOPIC is set)
	├── IntegritySupervisor ("integrity-layer")
	│   ├── Scheduled verification (if VERIFICATION_ENABLED)
	│   ├── Anomaly detection (if DETECTION_ENABLED)
	│   └── Archival scheduler (if ARCHIVAL_SCHEDULE is set)
	└── OpsSupervisor ("ops-layer")
	    └── HTTP server: /healthz, /readyz, /metrics

Initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog with JSON or console output
 3. Database: DuckDB file and audit tables
 4. Chain journal: BadgerDB (optional)
 5. Event bus: Watermill over an in-process channel or NATS
 6. Hash chain engine, writer, verifier and recorder
 7. Retention backlog report
 8. Supervisor tree

# Signal Handling

SIGINT and SIGTERM cancel the root context. Each service gets
SUPERVISOR_SHUTDOWN_TIMEOUT to stop; the chain journal, event bus and
database are closed afterwards in that order.

# Example Usage

	export DUCKDB_PATH=/data/auditkeep.duckdb
	export ARCHIVE_LOCATION=/data/archives
	export ARCHIVAL_SCHEDULE="0 3 * * *"
	./auditkeep
*/
package main
