// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package retention

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/validation"
)

// Store is the persistence the engine needs.
type Store interface {
	audit.PolicyStore
	RetainableTables() []string
	CountRows(ctx context.Context, table string, r audit.TimeRange) (int64, error)
}

// Engine validates retention policies and evaluates them against the store.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates a policy engine.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Validate checks p without touching the store. The archive period may
// never exceed the retention period: a record cannot be due for deletion
// before it is due for archival.
func (e *Engine) Validate(p *audit.RetentionPolicy) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.ArchivePeriodDays > p.RetentionPeriodDays {
		return audit.Validationf("archive period (%d days) exceeds retention period (%d days)",
			p.ArchivePeriodDays, p.RetentionPeriodDays)
	}
	if verr := validation.ValidateStruct(p); verr != nil {
		return audit.Validationf("retention policy: %v", verr)
	}

	allowed := e.store.RetainableTables()
	seen := make(map[string]struct{}, len(p.ApplicableTables))
	tables := make([]string, 0, len(p.ApplicableTables))
	for _, table := range p.ApplicableTables {
		if !slices.Contains(allowed, table) {
			return audit.Validationf("table %q is not retainable (supported: %s)",
				table, strings.Join(allowed, ", "))
		}
		if _, dup := seen[table]; dup {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	p.ApplicableTables = tables
	return nil
}

// Create validates and stores a new policy. A policy that fails validation
// is never persisted.
func (e *Engine) Create(ctx context.Context, p *audit.RetentionPolicy) (*audit.RetentionPolicy, error) {
	policy := clonePolicy(p)
	if err := e.Validate(&policy); err != nil {
		return nil, err
	}

	now := audit.NormalizeTime(e.now())
	policy.ID = uuid.New().String()
	policy.CreatedAt = now
	policy.UpdatedAt = now

	if err := e.store.InsertPolicy(ctx, &policy); err != nil {
		return nil, fmt.Errorf("create retention policy: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("policy_id", policy.ID).
		Str("name", policy.Name).
		Int("retention_days", policy.RetentionPeriodDays).
		Int("archive_days", policy.ArchivePeriodDays).
		Strs("tables", policy.ApplicableTables).
		Msg("Retention policy created")

	return &policy, nil
}

// Update replaces the mutable fields of an existing policy. CreatedAt is
// preserved.
func (e *Engine) Update(ctx context.Context, p *audit.RetentionPolicy) (*audit.RetentionPolicy, error) {
	existing, err := e.store.GetPolicy(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	policy := clonePolicy(p)
	if err := e.Validate(&policy); err != nil {
		return nil, err
	}
	policy.CreatedAt = existing.CreatedAt
	policy.UpdatedAt = audit.NormalizeTime(e.now())

	if err := e.store.UpdatePolicy(ctx, &policy); err != nil {
		return nil, fmt.Errorf("update retention policy %s: %w", p.ID, err)
	}

	logging.Ctx(ctx).Info().
		Str("policy_id", policy.ID).
		Bool("active", policy.IsActive).
		Msg("Retention policy updated")

	return &policy, nil
}

// Get returns one policy.
func (e *Engine) Get(ctx context.Context, id string) (*audit.RetentionPolicy, error) {
	return e.store.GetPolicy(ctx, id)
}

// List returns policies ordered by name.
func (e *Engine) List(ctx context.Context, activeOnly bool) ([]audit.RetentionPolicy, error) {
	return e.store.ListPolicies(ctx, audit.PolicyFilter{ActiveOnly: activeOnly})
}

// Deactivate stops a policy from being scheduled while keeping it for the
// job history that references it.
func (e *Engine) Deactivate(ctx context.Context, id string) (*audit.RetentionPolicy, error) {
	policy, err := e.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.IsActive {
		return policy, nil
	}
	policy.IsActive = false
	policy.UpdatedAt = audit.NormalizeTime(e.now())
	if err := e.store.UpdatePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("deactivate retention policy %s: %w", id, err)
	}
	logging.Ctx(ctx).Info().Str("policy_id", id).Msg("Retention policy deactivated")
	return policy, nil
}

// Delete removes a policy permanently.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.DeletePolicy(ctx, id); err != nil {
		return fmt.Errorf("delete retention policy %s: %w", id, err)
	}
	logging.Ctx(ctx).Info().Str("policy_id", id).Msg("Retention policy deleted")
	return nil
}

func clonePolicy(p *audit.RetentionPolicy) audit.RetentionPolicy {
	c := *p
	c.ApplicableTables = slices.Clone(p.ApplicableTables)
	return c
}
