// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// Engine runs the registered anomaly checks over the audit trail and
// records their findings as security events.
type Engine struct {
	detectors []Detector
	events    EventRecorder
	interval  time.Duration
	now       func() time.Time

	mu           sync.RWMutex
	enabled      bool
	metricsStore *EngineMetrics
}

// EngineMetrics tracks detection engine activity.
type EngineMetrics struct {
	Scans           int64
	EventsRaised    int64
	DetectionErrors int64
	LastScanAt      time.Time
	DetectorMetrics map[CheckType]*DetectorMetrics
	mu              sync.RWMutex
}

// DetectorMetrics tracks one check.
type DetectorMetrics struct {
	Runs            int64
	EventsRaised    int64
	Errors          int64
	LastTriggeredAt *time.Time
}

// ScanResult is the outcome of one scan. Errors holds the checks that
// failed; the others still ran.
type ScanResult struct {
	Events []*audit.SecurityEvent
	Errors map[CheckType]error
}

// NewEngine creates an engine with no detectors. interval is used by
// RunWithContext.
func NewEngine(events EventRecorder, interval time.Duration) *Engine {
	return &Engine{
		events:   events,
		interval: interval,
		now:      time.Now,
		enabled:  true,
		metricsStore: &EngineMetrics{
			DetectorMetrics: make(map[CheckType]*DetectorMetrics),
		},
	}
}

// NewDefaultEngine creates an engine with the bulk modification, time
// anomaly and access pattern checks registered.
func NewDefaultEngine(source RecordSource, events EventRecorder, cfg Config, interval time.Duration) *Engine {
	e := NewEngine(events, interval)
	e.RegisterDetector(NewBulkModificationDetector(source, cfg))
	e.RegisterDetector(NewTimeAnomalyDetector(source, cfg))
	e.RegisterDetector(NewAccessPatternDetector(source, cfg))
	return e
}

// RegisterDetector adds a detector. Detectors run in registration order.
func (e *Engine) RegisterDetector(detector Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.detectors = append(e.detectors, detector)
	e.metricsStore.mu.Lock()
	e.metricsStore.DetectorMetrics[detector.Type()] = &DetectorMetrics{}
	e.metricsStore.mu.Unlock()

	logging.Info().Str("check", string(detector.Type())).Msg("registered detector")
}

// Scan runs every enabled check once. A failing check is logged and
// reported in the result without stopping the others. Findings are
// persisted through the event recorder; a persistence failure is logged
// and the finding is still returned.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
	detectors := e.getEnabledDetectors()
	result := &ScanResult{Errors: make(map[CheckType]error)}
	if detectors == nil {
		return result, nil
	}

	ctx = logging.ContextWithNewCorrelationID(ctx)
	now := e.now()
	log := logging.Ctx(ctx)

	for _, d := range detectors {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		events, err := e.runSingleDetector(ctx, d, now)
		if err != nil {
			log.Error().Err(err).Str("check", string(d.Type())).Msg("anomaly check failed")
			result.Errors[d.Type()] = err
			continue
		}

		for _, ev := range events {
			stored, err := e.events.Create(ctx, ev)
			if err != nil {
				log.Error().Err(err).
					Str("check", string(d.Type())).
					Str("event_type", string(ev.EventType)).
					Msg("failed to record security event")
				result.Events = append(result.Events, ev)
				continue
			}
			result.Events = append(result.Events, stored)
		}
	}

	e.metricsStore.mu.Lock()
	e.metricsStore.Scans++
	e.metricsStore.EventsRaised += int64(len(result.Events))
	e.metricsStore.DetectionErrors += int64(len(result.Errors))
	e.metricsStore.LastScanAt = now
	e.metricsStore.mu.Unlock()

	log.Info().
		Int("events", len(result.Events)).
		Int("failed_checks", len(result.Errors)).
		Msg("anomaly scan complete")

	return result, nil
}

// runSingleDetector executes one detector and updates its metrics.
func (e *Engine) runSingleDetector(ctx context.Context, d Detector, now time.Time) (events []*audit.SecurityEvent, err error) {
	check := d.Type()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", check, r)
			events = nil
		}
		metrics.RecordAnomalyCheck(string(check), len(events) > 0, err)

		e.metricsStore.mu.Lock()
		if m, ok := e.metricsStore.DetectorMetrics[check]; ok {
			m.Runs++
			if err != nil {
				m.Errors++
			}
			if len(events) > 0 {
				m.EventsRaised += int64(len(events))
				t := now
				m.LastTriggeredAt = &t
			}
		}
		e.metricsStore.mu.Unlock()
	}()

	events, err = d.Check(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", check, err)
	}
	return events, nil
}

// getEnabledDetectors returns all enabled detectors, or nil if the engine
// is disabled or no detector is enabled.
func (e *Engine) getEnabledDetectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled {
		return nil
	}

	detectors := make([]Detector, 0, len(e.detectors))
	for _, d := range e.detectors {
		if d.Enabled() {
			detectors = append(detectors, d)
		}
	}

	if len(detectors) == 0 {
		return nil
	}
	return detectors
}

// RunWithContext scans on the configured interval until ctx is cancelled.
func (e *Engine) RunWithContext(ctx context.Context) error {
	if e.interval <= 0 {
		return fmt.Errorf("detection interval must be positive, got %s", e.interval)
	}

	logging.Info().Dur("interval", e.interval).Msg("anomaly detection started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("anomaly detection stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Scan(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("anomaly scan failed")
			}
		}
	}
}

// SetEnabled enables or disables the engine.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled returns whether the engine is enabled.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// GetDetector returns a detector by check type.
func (e *Engine) GetDetector(check CheckType) (Detector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range e.detectors {
		if d.Type() == check {
			return d, true
		}
	}
	return nil, false
}

// Metrics returns a copy of the engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	e.metricsStore.mu.RLock()
	defer e.metricsStore.mu.RUnlock()

	perCheck := make(map[CheckType]*DetectorMetrics, len(e.metricsStore.DetectorMetrics))
	for k, v := range e.metricsStore.DetectorMetrics {
		cp := *v
		perCheck[k] = &cp
	}
	return EngineMetrics{
		Scans:           e.metricsStore.Scans,
		EventsRaised:    e.metricsStore.EventsRaised,
		DetectionErrors: e.metricsStore.DetectionErrors,
		LastScanAt:      e.metricsStore.LastScanAt,
		DetectorMetrics: perCheck,
	}
}
