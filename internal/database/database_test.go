// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package database

import (
	"strings"
	"testing"

	"github.com/tomtom215/auditkeep/internal/config"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DatabaseConfig
		prefix   string
		contains []string
		absent   []string
	}{
		{
			name:     "file with memory limit",
			cfg:      config.DatabaseConfig{Path: "/data/audit.duckdb", MaxMemory: "2GB", Threads: 4},
			prefix:   "/data/audit.duckdb?",
			contains: []string{"threads=4", "max_memory=2GB", "autoinstall_known_extensions=false"},
		},
		{
			name:     "in memory",
			cfg:      config.DatabaseConfig{Path: MemoryPath, Threads: 2},
			prefix:   "?",
			contains: []string{"threads=2"},
			absent:   []string{"max_memory", MemoryPath},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := connString(tt.cfg)
			if !strings.HasPrefix(dsn, tt.prefix) {
				t.Errorf("dsn %q should start with %q", dsn, tt.prefix)
			}
			for _, s := range tt.contains {
				if !strings.Contains(dsn, s) {
					t.Errorf("dsn %q should contain %q", dsn, s)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(dsn, s) {
					t.Errorf("dsn %q should not contain %q", dsn, s)
				}
			}
		})
	}
}

func TestThreadsDefaultsToCPUCount(t *testing.T) {
	if n := threads(config.DatabaseConfig{}); n < 1 {
		t.Errorf("threads = %d, want at least 1", n)
	}
	if n := threads(config.DatabaseConfig{Threads: 3}); n != 3 {
		t.Errorf("threads = %d, want 3", n)
	}
}
