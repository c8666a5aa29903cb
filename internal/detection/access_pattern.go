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

// AccessPatternDetector flags an (actor, ip) pair with more activity in the
// window than a person plausibly produces, which points at a shared or
// stolen credential or a script.
type AccessPatternDetector struct {
	toggle
	source RecordSource
	config Config
}

// NewAccessPatternDetector creates the detector.
func NewAccessPatternDetector(source RecordSource, cfg Config) *AccessPatternDetector {
	return &AccessPatternDetector{source: source, config: cfg}
}

// Type implements Detector.
func (d *AccessPatternDetector) Type() CheckType { return CheckAccessPattern }

// Check implements Detector.
func (d *AccessPatternDetector) Check(ctx context.Context, now time.Time) ([]*audit.SecurityEvent, error) {
	window := audit.TimeRange{From: now.Add(-d.config.Window)}
	groups, err := d.source.CountRecordsGrouped(ctx, window, audit.GroupByActor, audit.GroupByIP)
	if err != nil {
		return nil, fmt.Errorf("count by actor and address: %w", err)
	}

	ignored := d.config.ignored()
	var events []*audit.SecurityEvent
	for _, g := range groups {
		if g.Count <= d.config.AccessThreshold || len(g.Key) < 2 {
			continue
		}
		actor, ip := g.Key[0], g.Key[1]
		if _, skip := ignored[actor]; skip || ip == "" {
			continue
		}

		events = append(events, &audit.SecurityEvent{
			EventType: audit.EventUnauthorizedAccess,
			Severity:  audit.SeverityMedium,
			Description: fmt.Sprintf("Actor %s made %d changes from %s in the last %s",
				actor, g.Count, ip, d.config.Window),
			ActorID:   actor,
			IPAddress: ip,
			Metadata: map[string]interface{}{
				"count":     g.Count,
				"window":    d.config.Window.String(),
				"threshold": d.config.AccessThreshold,
			},
		})
	}
	return events, nil
}
