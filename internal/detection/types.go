// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package detection

import (
	"context"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/config"
)

// CheckType identifies an anomaly check.
type CheckType string

const (
	// CheckBulkModification flags actors making many changes of one kind.
	CheckBulkModification CheckType = "bulk_modification"

	// CheckTimeAnomaly flags records stamped in the future.
	CheckTimeAnomaly CheckType = "time_anomaly"

	// CheckAccessPattern flags heavy activity from one actor and address.
	CheckAccessPattern CheckType = "access_pattern"
)

// maxAffectedRecords caps the record ids attached to one event.
const maxAffectedRecords = 100

// Detector is the interface every anomaly check implements.
type Detector interface {
	// Type returns the check this detector performs.
	Type() CheckType

	// Check inspects the audit trail and returns findings. Events are not
	// persisted by the detector.
	Check(ctx context.Context, now time.Time) ([]*audit.SecurityEvent, error)

	// Enabled returns whether this detector is currently enabled.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// RecordSource is the part of audit.Store the checks read.
type RecordSource interface {
	QueryRecords(ctx context.Context, filter audit.RecordFilter) ([]audit.Record, error)
	CountRecordsGrouped(ctx context.Context, r audit.TimeRange, fields ...audit.GroupField) ([]audit.GroupCount, error)
}

// EventRecorder persists findings. Satisfied by *secevent.Manager.
type EventRecorder interface {
	Create(ctx context.Context, ev *audit.SecurityEvent) (*audit.SecurityEvent, error)
}

// Config holds detection thresholds.
type Config struct {
	// Window is how far back bulk and access checks look.
	Window time.Duration

	// BulkThreshold: more (actor, action) records than this in the window is bulk.
	BulkThreshold int64

	// BulkHighThreshold: above this the bulk event is high severity.
	BulkHighThreshold int64

	// FutureSkew is the tolerated clock drift for future timestamps.
	FutureSkew time.Duration

	// AccessThreshold: more (actor, ip) records than this in the window is flagged.
	AccessThreshold int64

	// IgnoredActors are service accounts excluded from bulk and access checks.
	IgnoredActors []string
}

// DefaultConfig returns the documented thresholds.
func DefaultConfig() Config {
	return Config{
		Window:            time.Hour,
		BulkThreshold:     50,
		BulkHighThreshold: 100,
		FutureSkew:        5 * time.Minute,
		AccessThreshold:   200,
	}
}

// ConfigFrom converts the application settings.
func ConfigFrom(cfg config.DetectionConfig) Config {
	return Config{
		Window:            cfg.Window,
		BulkThreshold:     cfg.BulkThreshold,
		BulkHighThreshold: cfg.BulkHighThreshold,
		FutureSkew:        cfg.FutureSkew,
		AccessThreshold:   cfg.AccessThreshold,
		IgnoredActors:     append([]string(nil), cfg.IgnoredActors...),
	}
}

func (c Config) ignored() map[string]struct{} {
	out := make(map[string]struct{}, len(c.IgnoredActors))
	for _, a := range c.IgnoredActors {
		out[a] = struct{}{}
	}
	return out
}
