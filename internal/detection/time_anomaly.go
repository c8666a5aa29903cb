// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
)

// TimeAnomalyDetector flags records timestamped further in the future than
// the allowed clock skew. All offending records go into a single event.
type TimeAnomalyDetector struct {
	toggle
	source RecordSource
	config Config
}

// NewTimeAnomalyDetector creates the detector.
func NewTimeAnomalyDetector(source RecordSource, cfg Config) *TimeAnomalyDetector {
	return &TimeAnomalyDetector{source: source, config: cfg}
}

// Type implements Detector.
func (d *TimeAnomalyDetector) Type() CheckType { return CheckTimeAnomaly }

// Check implements Detector.
func (d *TimeAnomalyDetector) Check(ctx context.Context, now time.Time) ([]*audit.SecurityEvent, error) {
	limit := now.Add(d.config.FutureSkew)
	recs, err := d.source.QueryRecords(ctx, audit.RecordFilter{
		Range: audit.TimeRange{From: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("query future records: %w", err)
	}

	var future []audit.Record
	var furthest time.Duration
	for i := range recs {
		// From is inclusive, the skew limit is not
		if !recs[i].ChangedAt.After(limit) {
			continue
		}
		future = append(future, recs[i])
		if ahead := recs[i].ChangedAt.Sub(now); ahead > furthest {
			furthest = ahead
		}
	}
	if len(future) == 0 {
		return nil, nil
	}

	affected := future
	if len(affected) > maxAffectedRecords {
		affected = affected[:maxAffectedRecords]
	}

	return []*audit.SecurityEvent{{
		EventType: audit.EventTimeAnomaly,
		Severity:  audit.SeverityMedium,
		Description: fmt.Sprintf("%d audit records are timestamped more than %s in the future",
			len(future), d.config.FutureSkew),
		AffectedRecords: recordIDs(affected),
		Metadata: map[string]interface{}{
			"count":        int64(len(future)),
			"max_skew":     d.config.FutureSkew.String(),
			"furthest_gap": furthest.String(),
		},
	}}, nil
}
