// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/auditkeep/internal/logging"
)

// SupportedAlgorithms lists the hash chain algorithms accepted in chain.algorithm.
var SupportedAlgorithms = []string{"sha256", "sha3-256", "blake2b-256"}

// Validate checks that the configuration is complete and consistent
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateChain(); err != nil {
		return err
	}

	if err := c.validateVerification(); err != nil {
		return err
	}

	if err := c.validateDetection(); err != nil {
		return err
	}

	if err := c.validateArchival(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSupervisor(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateChain() error {
	if !isSupportedAlgorithm(c.Chain.Algorithm) {
		return fmt.Errorf("CHAIN_ALGORITHM must be one of %s, got %q",
			strings.Join(SupportedAlgorithms, ", "), c.Chain.Algorithm)
	}
	if c.Chain.QueueSize < 1 {
		return fmt.Errorf("CHAIN_QUEUE_SIZE must be at least 1, got %d", c.Chain.QueueSize)
	}
	if c.Chain.Journal.Enabled && c.Chain.Journal.Path == "" {
		return fmt.Errorf("CHAIN_JOURNAL_PATH is required when CHAIN_JOURNAL_ENABLED=true")
	}
	return nil
}

func isSupportedAlgorithm(name string) bool {
	for _, a := range SupportedAlgorithms {
		if a == name {
			return true
		}
	}
	return false
}

func (c *Config) validateVerification() error {
	if !c.Verification.Enabled {
		return nil
	}
	if c.Verification.Interval <= 0 {
		return fmt.Errorf("VERIFICATION_INTERVAL must be positive, got %v", c.Verification.Interval)
	}
	if c.Verification.BulkLimit < 1 {
		return fmt.Errorf("VERIFICATION_BULK_LIMIT must be at least 1, got %d", c.Verification.BulkLimit)
	}
	return nil
}

// validateDetection checks the scan schedule and thresholds. Thresholds are
// validated even when scheduled scans are disabled because on-demand scans
// use them too.
func (c *Config) validateDetection() error {
	d := c.Detection
	if d.Enabled && d.Interval <= 0 {
		return fmt.Errorf("DETECTION_INTERVAL must be positive, got %v", d.Interval)
	}
	if d.Window <= 0 {
		return fmt.Errorf("DETECTION_WINDOW must be positive, got %v", d.Window)
	}
	if d.BulkThreshold < 1 {
		return fmt.Errorf("DETECTION_BULK_THRESHOLD must be at least 1, got %d", d.BulkThreshold)
	}
	if d.BulkHighThreshold < d.BulkThreshold {
		return fmt.Errorf("DETECTION_BULK_HIGH_THRESHOLD (%d) must be >= DETECTION_BULK_THRESHOLD (%d)",
			d.BulkHighThreshold, d.BulkThreshold)
	}
	if d.FutureSkew < 0 {
		return fmt.Errorf("DETECTION_FUTURE_SKEW must be >= 0, got %v", d.FutureSkew)
	}
	if d.AccessThreshold < 1 {
		return fmt.Errorf("DETECTION_ACCESS_THRESHOLD must be at least 1, got %d", d.AccessThreshold)
	}
	return nil
}

func (c *Config) validateArchival() error {
	a := c.Archival
	if a.Location == "" {
		return fmt.Errorf("ARCHIVE_LOCATION is required")
	}
	if a.Schedule != "" {
		if _, err := cron.ParseStandard(a.Schedule); err != nil {
			return fmt.Errorf("ARCHIVAL_SCHEDULE %q is not a valid cron expression: %w", a.Schedule, err)
		}
	}
	if a.BatchSize < 1 {
		return fmt.Errorf("ARCHIVAL_BATCH_SIZE must be at least 1, got %d", a.BatchSize)
	}
	if a.DeleteRate < 0 {
		return fmt.Errorf("ARCHIVAL_DELETE_RATE must be >= 0, got %v", a.DeleteRate)
	}
	if a.CompressionLevel < -1 || a.CompressionLevel > 9 {
		return fmt.Errorf("ARCHIVAL_COMPRESSION_LEVEL must be between -1 and 9, got %d", a.CompressionLevel)
	}
	return validateBreaker("ARCHIVAL_BREAKER", a.Breaker)
}

func validateBreaker(prefix string, b BreakerConfig) error {
	if b.MaxRequests < 1 {
		return fmt.Errorf("%s_MAX_REQUESTS must be at least 1", prefix)
	}
	if b.FailureThreshold < 1 {
		return fmt.Errorf("%s_FAILURE_THRESHOLD must be at least 1", prefix)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("%s_TIMEOUT must be positive, got %v", prefix, b.Timeout)
	}
	if b.Interval < 0 {
		return fmt.Errorf("%s_INTERVAL must be >= 0, got %v", prefix, b.Interval)
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "memory":
	case "nats":
		if err := validateNATSURL(c.Events.NATSURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be 'memory' or 'nats', got %q", c.Events.Backend)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required")
	}
	if c.Events.RecordsTopic == c.Events.Topic {
		return fmt.Errorf("EVENTS_RECORDS_TOPIC must differ from EVENTS_TOPIC, both are %q", c.Events.Topic)
	}
	return validateBreaker("EVENTS_BREAKER", c.Events.Breaker)
}

// validateNATSURL validates NATS_URL format (nats://, tls://)
func validateNATSURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("NATS_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return fmt.Errorf("NATS_URL must use nats:// or tls:// scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("NATS_URL must include a host")
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		return fmt.Errorf("HTTP_LISTEN_ADDR %q must be host:port: %w", c.Server.ListenAddr, err)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT must be >= 0, got %d", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT_WINDOW must be positive when HTTP_RATE_LIMIT is set")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	s := c.Supervisor
	if s.FailureThreshold <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_THRESHOLD must be positive, got %v", s.FailureThreshold)
	}
	if s.FailureDecay <= 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_DECAY must be positive, got %v", s.FailureDecay)
	}
	if s.FailureBackoff < 0 {
		return fmt.Errorf("SUPERVISOR_FAILURE_BACKOFF must be >= 0, got %v", s.FailureBackoff)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("SUPERVISOR_SHUTDOWN_TIMEOUT must be positive, got %v", s.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a recognised level (trace, debug, info, warn, error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
