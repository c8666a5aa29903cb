// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Chain.Algorithm != "sha256" {
		t.Errorf("Chain.Algorithm = %q, want sha256", cfg.Chain.Algorithm)
	}
	if !cfg.Chain.Journal.Enabled {
		t.Error("Chain.Journal.Enabled should be true by default")
	}
	if cfg.Detection.Window != time.Hour {
		t.Errorf("Detection.Window = %v, want 1h", cfg.Detection.Window)
	}
	if cfg.Detection.BulkThreshold != 50 || cfg.Detection.BulkHighThreshold != 100 {
		t.Errorf("bulk thresholds = %d/%d, want 50/100",
			cfg.Detection.BulkThreshold, cfg.Detection.BulkHighThreshold)
	}
	if cfg.Detection.FutureSkew != 5*time.Minute {
		t.Errorf("Detection.FutureSkew = %v, want 5m", cfg.Detection.FutureSkew)
	}
	if cfg.Detection.AccessThreshold != 200 {
		t.Errorf("Detection.AccessThreshold = %d, want 200", cfg.Detection.AccessThreshold)
	}
	if cfg.Archival.BatchSize != 1000 {
		t.Errorf("Archival.BatchSize = %d, want 1000", cfg.Archival.BatchSize)
	}
	if cfg.Events.Backend != "memory" {
		t.Errorf("Events.Backend = %q, want memory", cfg.Events.Backend)
	}
	if cfg.Events.Topic != "audit.security_events" {
		t.Errorf("Events.Topic = %q, want audit.security_events", cfg.Events.Topic)
	}
	if cfg.Events.RecordsTopic != "audit.records" {
		t.Errorf("Events.RecordsTopic = %q, want audit.records", cfg.Events.RecordsTopic)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("CHAIN_ALGORITHM", "sha3-256")
	t.Setenv("CHAIN_JOURNAL_ENABLED", "false")
	t.Setenv("VERIFICATION_INTERVAL", "30m")
	t.Setenv("DETECTION_BULK_THRESHOLD", "20")
	t.Setenv("DETECTION_IGNORED_ACTORS", "importer, migrator ,")
	t.Setenv("ARCHIVAL_SCHEDULE", "*/15 * * * *")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Chain.Algorithm != "sha3-256" {
		t.Errorf("Chain.Algorithm = %q", cfg.Chain.Algorithm)
	}
	if cfg.Chain.Journal.Enabled {
		t.Error("Chain.Journal.Enabled should be overridden to false")
	}
	if cfg.Verification.Interval != 30*time.Minute {
		t.Errorf("Verification.Interval = %v", cfg.Verification.Interval)
	}
	if cfg.Detection.BulkThreshold != 20 {
		t.Errorf("Detection.BulkThreshold = %d", cfg.Detection.BulkThreshold)
	}
	if want := []string{"importer", "migrator"}; !reflect.DeepEqual(cfg.Detection.IgnoredActors, want) {
		t.Errorf("Detection.IgnoredActors = %v, want %v", cfg.Detection.IgnoredActors, want)
	}
	if cfg.Archival.Schedule != "*/15 * * * *" {
		t.Errorf("Archival.Schedule = %q", cfg.Archival.Schedule)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	// untouched values keep their defaults
	if cfg.Detection.AccessThreshold != 200 {
		t.Errorf("Detection.AccessThreshold = %d, want default 200", cfg.Detection.AccessThreshold)
	}
}

func TestLoadWithKoanf_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "auditkeep.yaml")
	content := `
database:
  path: /srv/audit.duckdb
archival:
  location: /srv/archives
  batch_size: 250
events:
  backend: nats
  nats_url: nats://nats.internal:4222
detection:
  ignored_actors:
    - importer
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("ARCHIVAL_BATCH_SIZE", "500")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Database.Path != "/srv/audit.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Archival.Location != "/srv/archives" {
		t.Errorf("Archival.Location = %q", cfg.Archival.Location)
	}
	if cfg.Archival.BatchSize != 500 {
		t.Errorf("env should override file: Archival.BatchSize = %d, want 500", cfg.Archival.BatchSize)
	}
	if cfg.Events.Backend != "nats" || cfg.Events.NATSURL != "nats://nats.internal:4222" {
		t.Errorf("Events = %+v", cfg.Events)
	}
	if !reflect.DeepEqual(cfg.Detection.IgnoredActors, []string{"importer"}) {
		t.Errorf("Detection.IgnoredActors = %v", cfg.Detection.IgnoredActors)
	}
}

func TestLoadWithKoanf_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("ARCHIVAL_SCHEDULE", "every day")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation error for malformed cron schedule")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"DUCKDB_PATH", "database.path"},
		{"CHAIN_JOURNAL_SYNC_WRITES", "chain.journal.sync_writes"},
		{"NATS_URL", "events.nats_url"},
		{"ARCHIVE_LOCATION", "archival.location"},
		{"archival_breaker_timeout", "archival.breaker.timeout"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.key); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestProcessSliceFields(t *testing.T) {
	k := koanf.New(".")
	if err := k.Set("detection.ignored_actors", "a,b, c"); err != nil {
		t.Fatal(err)
	}

	if err := processSliceFields(k); err != nil {
		t.Fatalf("processSliceFields() error = %v", err)
	}

	if got := k.Strings("detection.ignored_actors"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("ignored_actors = %v", got)
	}
}

func TestFindConfigFile_EnvPathMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "/nonexistent/auditkeep.yaml")

	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}
}
