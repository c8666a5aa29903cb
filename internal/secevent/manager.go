// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package secevent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 50

// Store is the part of audit.Store the manager uses.
type Store interface {
	InsertSecurityEvent(ctx context.Context, ev *audit.SecurityEvent) error
	GetSecurityEvent(ctx context.Context, id string) (*audit.SecurityEvent, error)
	QuerySecurityEvents(ctx context.Context, filter audit.SecurityEventFilter) ([]audit.SecurityEvent, error)
	CountSecurityEvents(ctx context.Context, filter audit.SecurityEventFilter) (int64, error)
	ResolveSecurityEvent(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error)
}

// Publisher forwards created events. Satisfied by *eventbus.Publisher.
type Publisher interface {
	PublishSecurityEvent(ctx context.Context, ev *audit.SecurityEvent) error
}

// Manager owns the security event lifecycle: events are created unresolved
// and may only move to resolved.
type Manager struct {
	store     Store
	publisher Publisher
	findings  *logging.FindingLogger
	now       func() time.Time
}

// NewManager creates a manager. publisher may be nil.
func NewManager(store Store, publisher Publisher) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		findings:  logging.NewFindingLogger(),
		now:       time.Now,
	}
}

// Create stores a new finding. The id, detection time and resolution
// fields are always assigned here; values supplied by the caller are
// ignored so findings cannot be backdated or created resolved.
func (m *Manager) Create(ctx context.Context, ev *audit.SecurityEvent) (*audit.SecurityEvent, error) {
	if !ev.EventType.Valid() {
		return nil, audit.Validationf("unknown security event type %q", ev.EventType)
	}
	if !ev.Severity.Valid() {
		return nil, audit.Validationf("unknown severity %q", ev.Severity)
	}
	if strings.TrimSpace(ev.Description) == "" {
		return nil, audit.Validationf("security event description is required")
	}

	stored := *ev
	stored.ID = uuid.New().String()
	stored.DetectedAt = audit.NormalizeTime(m.now())
	stored.Resolved = false
	stored.ResolvedBy = ""
	stored.ResolvedAt = nil
	if stored.AffectedRecords == nil {
		stored.AffectedRecords = []string{}
	}

	if err := m.store.InsertSecurityEvent(ctx, &stored); err != nil {
		return nil, fmt.Errorf("store security event: %w", err)
	}

	metrics.RecordSecurityEvent(string(stored.EventType), string(stored.Severity))
	m.findings.LogFinding(ctx, &logging.Finding{
		ID:              stored.ID,
		Type:            string(stored.EventType),
		Severity:        string(stored.Severity),
		Description:     stored.Description,
		AffectedRecords: stored.AffectedRecords,
		ActorID:         stored.ActorID,
		IPAddress:       stored.IPAddress,
		Metadata:        stored.Metadata,
	})

	// Publication is best effort; the stored event is the record of truth.
	if m.publisher != nil {
		if err := m.publisher.PublishSecurityEvent(ctx, &stored); err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("event_id", stored.ID).
				Msg("Security event stored but not published")
		}
	}

	return &stored, nil
}

// Resolve marks the event resolved by resolvedBy. Resolving an event that is
// already resolved changes nothing and returns it as stored.
func (m *Manager) Resolve(ctx context.Context, id, resolvedBy string) (*audit.SecurityEvent, error) {
	resolvedBy = strings.TrimSpace(resolvedBy)
	if resolvedBy == "" {
		return nil, audit.Validationf("resolver is required")
	}

	changed, err := m.store.ResolveSecurityEvent(ctx, id, resolvedBy, audit.NormalizeTime(m.now()))
	if err != nil {
		return nil, fmt.Errorf("resolve security event %s: %w", id, err)
	}
	if changed {
		metrics.SecurityEventsResolved.Inc()
	}
	m.findings.LogResolved(ctx, id, resolvedBy, !changed)

	return m.store.GetSecurityEvent(ctx, id)
}

// Get returns one event.
func (m *Manager) Get(ctx context.Context, id string) (*audit.SecurityEvent, error) {
	return m.store.GetSecurityEvent(ctx, id)
}

// List returns events newest first. A zero limit means DefaultListLimit.
func (m *Manager) List(ctx context.Context, filter audit.SecurityEventFilter) ([]audit.SecurityEvent, error) {
	if err := validateFilter(&filter); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	return m.store.QuerySecurityEvents(ctx, filter)
}

// Count returns the number of events matching filter, ignoring paging.
func (m *Manager) Count(ctx context.Context, filter audit.SecurityEventFilter) (int64, error) {
	if err := validateFilter(&filter); err != nil {
		return 0, err
	}
	filter.Limit, filter.Offset = 0, 0
	return m.store.CountSecurityEvents(ctx, filter)
}

// OpenBySeverity counts unresolved events detected in r per severity.
// Severities with no events are present with a zero count.
func (m *Manager) OpenBySeverity(ctx context.Context, r audit.TimeRange) (map[audit.Severity]int64, error) {
	out := make(map[audit.Severity]int64, 4)
	for _, sev := range []audit.Severity{audit.SeverityLow, audit.SeverityMedium, audit.SeverityHigh, audit.SeverityCritical} {
		n, err := m.store.CountSecurityEvents(ctx, audit.SecurityEventFilter{
			UnresolvedOnly: true,
			Severity:       sev,
			Range:          r,
		})
		if err != nil {
			return nil, fmt.Errorf("count %s events: %w", sev, err)
		}
		out[sev] = n
	}
	return out, nil
}

func validateFilter(f *audit.SecurityEventFilter) error {
	if f.Severity != "" && !f.Severity.Valid() {
		return audit.Validationf("unknown severity %q", f.Severity)
	}
	if f.EventType != "" && !f.EventType.Valid() {
		return audit.Validationf("unknown security event type %q", f.EventType)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return audit.Validationf("limit and offset must not be negative")
	}
	return nil
}
