// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an optional
// YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any mapped setting
//
// Configuration Categories:
//
//  1. Storage:
//     - Database: DuckDB file, memory limit and threads
//     - Chain: hash algorithm, writer queue and the BadgerDB journal
//
//  2. Integrity:
//     - Verification: scheduled bulk verification
//     - Detection: anomaly scan interval, window and thresholds
//
//  3. Retention:
//     - Archival: archive location, cron schedule, batch pacing, breaker
//
//  4. Runtime:
//     - Events: security event bus backend
//     - Server: ops HTTP listener
//     - Supervisor: suture restart policy
//     - Logging: log level and output format
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load config")
//	}
type Config struct {
	Database     DatabaseConfig     `koanf:"database"`
	Chain        ChainConfig        `koanf:"chain"`
	Verification VerificationConfig `koanf:"verification"`
	Detection    DetectionConfig    `koanf:"detection"`
	Archival     ArchivalConfig     `koanf:"archival"`
	Events       EventsConfig       `koanf:"events"`
	Server       ServerConfig       `koanf:"server"`
	Supervisor   SupervisorConfig   `koanf:"supervisor"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path"`       // ":memory:" for an ephemeral store
	MaxMemory string `koanf:"max_memory"` // DuckDB memory_limit, e.g. "1GB"
	Threads   int    `koanf:"threads"`    // 0 = use NumCPU
}

// ChainConfig controls the hash chain writer.
type ChainConfig struct {
	// Algorithm used for new hash records: sha256, sha3-256 or blake2b-256.
	// Existing records keep verifying with the algorithm they were written with.
	Algorithm string `koanf:"algorithm"`

	// QueueSize is the buffered capacity of the single writer queue.
	QueueSize int `koanf:"queue_size"`

	Journal JournalConfig `koanf:"journal"`
}

// JournalConfig holds the BadgerDB journal of pending chain appends.
type JournalConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// VerificationConfig holds scheduled bulk verification settings
type VerificationConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval"`
	BulkLimit int           `koanf:"bulk_limit"`
}

// DetectionConfig holds anomaly detection settings
type DetectionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`

	// Window is how far back each scan looks.
	Window time.Duration `koanf:"window"`

	// BulkThreshold flags an (actor, action) pair above this count.
	// BulkHighThreshold raises the severity to high.
	BulkThreshold     int64 `koanf:"bulk_threshold"`
	BulkHighThreshold int64 `koanf:"bulk_high_threshold"`

	// FutureSkew is how far ahead of now a timestamp may be.
	FutureSkew time.Duration `koanf:"future_skew"`

	// AccessThreshold flags an (actor, ip) pair above this count.
	AccessThreshold int64 `koanf:"access_threshold"`

	// IgnoredActors are service accounts excluded from the bulk and access
	// checks (batch importers, migrations).
	IgnoredActors []string `koanf:"ignored_actors"`
}

// ArchivalConfig holds the archival job runner settings
type ArchivalConfig struct {
	// Location is the directory archive files are written to.
	Location string `koanf:"location"`

	// Schedule is a standard 5-field cron expression. Empty disables
	// scheduled archival.
	Schedule string `koanf:"schedule"`

	// BatchSize is the number of ids per delete statement.
	BatchSize int `koanf:"batch_size"`

	// DeleteRate caps delete batches per second. 0 = unlimited.
	DeleteRate float64 `koanf:"delete_rate"`

	// CompressionLevel is passed to gzip (1-9, -1 = default).
	CompressionLevel int `koanf:"compression_level"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures a gobreaker circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`      // allowed in half-open
	Interval         time.Duration `koanf:"interval"`          // closed-state count reset
	Timeout          time.Duration `koanf:"timeout"`           // open -> half-open
	FailureThreshold uint32        `koanf:"failure_threshold"` // consecutive failures to trip
}

// EventsConfig holds the security event bus settings
type EventsConfig struct {
	// Backend is "memory" (watermill gochannel) or "nats".
	Backend string `koanf:"backend"`
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic"`

	// RecordsTopic carries audit records from the application into the
	// recorder. Empty disables record intake.
	RecordsTopic string `koanf:"records_topic"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// ServerConfig holds the ops HTTP server settings
type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RateLimit       int           `koanf:"rate_limit"`        // requests per window per IP
	RateLimitWindow time.Duration `koanf:"rate_limit_window"` // httprate window
}

// SupervisorConfig holds the suture restart policy
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"` // seconds
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller adds file:line to each entry.
	Caller bool `koanf:"caller"`
}

// Load loads configuration using Koanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
