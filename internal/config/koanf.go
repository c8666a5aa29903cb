// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/auditkeep/config.yaml",
	"/etc/auditkeep/config.yml",
}

// ConfigPathEnvVar names the environment variable holding an explicit config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/auditkeep.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Chain: ChainConfig{
			Algorithm: "sha256",
			QueueSize: 1024,
			Journal: JournalConfig{
				Enabled:    true,
				Path:       "/data/chain-journal",
				SyncWrites: true,
			},
		},
		Verification: VerificationConfig{
			Enabled:   true,
			Interval:  time.Hour,
			BulkLimit: 1000,
		},
		Detection: DetectionConfig{
			Enabled:           true,
			Interval:          15 * time.Minute,
			Window:            time.Hour,
			BulkThreshold:     50,
			BulkHighThreshold: 100,
			FutureSkew:        5 * time.Minute,
			AccessThreshold:   200,
		},
		Archival: ArchivalConfig{
			Location:         "/data/archives",
			Schedule:         "0 3 * * *", // daily at 03:00
			BatchSize:        1000,
			DeleteRate:       0, // Unlimited
			CompressionLevel: -1,
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Events: EventsConfig{
			Backend:      "memory",
			NATSURL:      "nats://127.0.0.1:4222",
			Topic:        "audit.security_events",
			RecordsTopic: "audit.records",

			Breaker: BreakerConfig{
				MaxRequests:      3,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Server: ServerConfig{
			ListenAddr:      ":9090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RateLimit:       120,
			RateLimitWindow: time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// DUCKDB_PATH -> database.path
	// ARCHIVAL_SCHEDULE -> archival.schedule
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices
var sliceConfigPaths = []string{
	"detection.ignored_actors",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings while YAML files already produce lists.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Hash chain
	"chain_algorithm":           "chain.algorithm",
	"chain_queue_size":          "chain.queue_size",
	"chain_journal_enabled":     "chain.journal.enabled",
	"chain_journal_path":        "chain.journal.path",
	"chain_journal_sync_writes": "chain.journal.sync_writes",

	// Verification
	"verification_enabled":    "verification.enabled",
	"verification_interval":   "verification.interval",
	"verification_bulk_limit": "verification.bulk_limit",

	// Detection
	"detection_enabled":             "detection.enabled",
	"detection_interval":            "detection.interval",
	"detection_window":              "detection.window",
	"detection_bulk_threshold":      "detection.bulk_threshold",
	"detection_bulk_high_threshold": "detection.bulk_high_threshold",
	"detection_future_skew":         "detection.future_skew",
	"detection_access_threshold":    "detection.access_threshold",
	"detection_ignored_actors":      "detection.ignored_actors",

	// Archival
	"archive_location":                   "archival.location",
	"archival_schedule":                  "archival.schedule",
	"archival_batch_size":                "archival.batch_size",
	"archival_delete_rate":               "archival.delete_rate",
	"archival_compression_level":         "archival.compression_level",
	"archival_breaker_max_requests":      "archival.breaker.max_requests",
	"archival_breaker_interval":          "archival.breaker.interval",
	"archival_breaker_timeout":           "archival.breaker.timeout",
	"archival_breaker_failure_threshold": "archival.breaker.failure_threshold",

	// Event bus
	"events_backend":                   "events.backend",
	"nats_url":                         "events.nats_url",
	"events_topic":                     "events.topic",
	"events_records_topic":             "events.records_topic",
	"events_breaker_max_requests":      "events.breaker.max_requests",
	"events_breaker_interval":          "events.breaker.interval",
	"events_breaker_timeout":           "events.breaker.timeout",
	"events_breaker_failure_threshold": "events.breaker.failure_threshold",

	// Ops server
	"http_listen_addr":       "server.listen_addr",
	"http_read_timeout":      "server.read_timeout",
	"http_write_timeout":     "server.write_timeout",
	"http_rate_limit":        "server.rate_limit",
	"http_rate_limit_window": "server.rate_limit_window",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - DUCKDB_PATH -> database.path
//   - CHAIN_ALGORITHM -> chain.algorithm
//   - NATS_URL -> events.nats_url
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables
	// never pollute the config.
	return ""
}
