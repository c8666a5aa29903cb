// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package config provides centralized configuration management for Auditkeep.

Configuration is layered with Koanf v2: built-in defaults, then an optional
YAML file, then environment variables. The file is taken from CONFIG_PATH
when set, otherwise the first of DefaultConfigPaths that exists.

# Environment Variables

Database:
  - DUCKDB_PATH: Database file path (default: /data/auditkeep.duckdb)
  - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 1GB)
  - DUCKDB_THREADS: Worker threads, 0 = NumCPU

Hash chain:
  - CHAIN_ALGORITHM: sha256, sha3-256 or blake2b-256 (default: sha256)
  - CHAIN_QUEUE_SIZE: Writer queue capacity (default: 1024)
  - CHAIN_JOURNAL_ENABLED: Journal pending appends in BadgerDB (default: true)
  - CHAIN_JOURNAL_PATH: Journal directory (default: /data/chain-journal)
  - CHAIN_JOURNAL_SYNC_WRITES: fsync each journal write (default: true)

Verification and detection:
  - VERIFICATION_ENABLED, VERIFICATION_INTERVAL (1h), VERIFICATION_BULK_LIMIT (1000)
  - DETECTION_ENABLED, DETECTION_INTERVAL (15m), DETECTION_WINDOW (1h)
  - DETECTION_BULK_THRESHOLD (50), DETECTION_BULK_HIGH_THRESHOLD (100)
  - DETECTION_FUTURE_SKEW (5m), DETECTION_ACCESS_THRESHOLD (200)
  - DETECTION_IGNORED_ACTORS: Comma-separated service accounts

Archival:
  - ARCHIVE_LOCATION: Archive directory (default: /data/archives)
  - ARCHIVAL_SCHEDULE: Cron expression, empty disables (default: 0 3 * * *)
  - ARCHIVAL_BATCH_SIZE: Ids per delete batch (default: 1000)
  - ARCHIVAL_DELETE_RATE: Delete batches per second, 0 = unlimited
  - ARCHIVAL_COMPRESSION_LEVEL: gzip level -1..9
  - ARCHIVAL_BREAKER_*: Circuit breaker around store calls

Event bus:
  - EVENTS_BACKEND: memory or nats (default: memory)
  - NATS_URL: NATS server URL (default: nats://127.0.0.1:4222)
  - EVENTS_TOPIC: Topic for security events (default: audit.security_events)
  - EVENTS_RECORDS_TOPIC: Topic audit records are consumed from (default: audit.records, empty disables intake)
  - EVENTS_BREAKER_*: Circuit breaker around publishing

Runtime:
  - HTTP_LISTEN_ADDR: Ops server address (default: :9090)
  - HTTP_RATE_LIMIT, HTTP_RATE_LIMIT_WINDOW: Per-IP limit on ops endpoints
  - SUPERVISOR_FAILURE_THRESHOLD, SUPERVISOR_FAILURE_DECAY,
    SUPERVISOR_FAILURE_BACKOFF, SUPERVISOR_SHUTDOWN_TIMEOUT
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Validation

Load fails fast when a value is out of range: unknown hash algorithms,
unparseable cron schedules, a bulk high threshold below the bulk threshold,
or a NATS backend without a nats:// or tls:// URL.
*/
package config
