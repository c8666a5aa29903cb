// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package wal

import (
	"errors"
	"time"

	"github.com/tomtom215/auditkeep/internal/config"
)

// Config holds journal settings.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	// Should be on a durable filesystem (not tmpfs).
	Path string

	// SyncWrites forces fsync after every append.
	SyncWrites bool

	// InMemory keeps the journal in memory only. Used by tests.
	InMemory bool

	// GCRatio is the ratio for value log garbage collection.
	// Default: 0.5
	GCRatio float64

	// CloseTimeout is the maximum time to wait for BadgerDB to close.
	// Default: 30s
	CloseTimeout time.Duration
}

// ConfigFrom builds a journal config from the application settings.
func ConfigFrom(cfg config.JournalConfig) Config {
	return Config{
		Path:         cfg.Path,
		SyncWrites:   cfg.SyncWrites,
		GCRatio:      0.5,
		CloseTimeout: 30 * time.Second,
	}
}

// Validate checks the config and fills defaults.
func (c *Config) Validate() error {
	if c.Path == "" && !c.InMemory {
		return errors.New("journal path is required")
	}
	if c.GCRatio == 0 {
		c.GCRatio = 0.5
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return errors.New("journal GC ratio must be between 0 and 1")
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 30 * time.Second
	}
	return nil
}
