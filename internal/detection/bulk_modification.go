// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package detection

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
)

// toggle carries the enabled flag shared by all detectors.
type toggle struct {
	disabled atomic.Bool
}

func (t *toggle) Enabled() bool           { return !t.disabled.Load() }
func (t *toggle) SetEnabled(enabled bool) { t.disabled.Store(!enabled) }

// BulkModificationDetector flags an actor performing more than the
// threshold number of one action inside the window.
type BulkModificationDetector struct {
	toggle
	source RecordSource
	config Config
}

// NewBulkModificationDetector creates the detector.
func NewBulkModificationDetector(source RecordSource, cfg Config) *BulkModificationDetector {
	return &BulkModificationDetector{source: source, config: cfg}
}

// Type implements Detector.
func (d *BulkModificationDetector) Type() CheckType { return CheckBulkModification }

// Check implements Detector. One event is returned per offending
// (actor, action) pair.
func (d *BulkModificationDetector) Check(ctx context.Context, now time.Time) ([]*audit.SecurityEvent, error) {
	window := audit.TimeRange{From: now.Add(-d.config.Window)}
	groups, err := d.source.CountRecordsGrouped(ctx, window, audit.GroupByActor, audit.GroupByAction)
	if err != nil {
		return nil, fmt.Errorf("count by actor and action: %w", err)
	}

	ignored := d.config.ignored()
	var events []*audit.SecurityEvent
	for _, g := range groups {
		if g.Count <= d.config.BulkThreshold || len(g.Key) < 2 {
			continue
		}
		actor, action := g.Key[0], g.Key[1]
		if _, skip := ignored[actor]; skip {
			continue
		}

		severity := audit.SeverityMedium
		if g.Count > d.config.BulkHighThreshold {
			severity = audit.SeverityHigh
		}

		affected, err := d.source.QueryRecords(ctx, audit.RecordFilter{
			Range:     window,
			ChangedBy: actor,
			Action:    audit.Action(action),
			Limit:     maxAffectedRecords,
			OrderDesc: true,
		})
		if err != nil {
			return nil, fmt.Errorf("load records for %s: %w", actor, err)
		}

		events = append(events, &audit.SecurityEvent{
			EventType: audit.EventBulkModification,
			Severity:  severity,
			Description: fmt.Sprintf("Actor %s performed %d %s operations in the last %s",
				actor, g.Count, action, d.config.Window),
			AffectedRecords: recordIDs(affected),
			ActorID:         actor,
			Metadata: map[string]interface{}{
				"count":     g.Count,
				"action":    action,
				"window":    d.config.Window.String(),
				"threshold": d.config.BulkThreshold,
			},
		})
	}
	return events, nil
}

func recordIDs(recs []audit.Record) []string {
	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].ID
	}
	return ids
}
