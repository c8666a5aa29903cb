// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
)

// Cutoffs are the two boundaries a policy defines at a point in time.
// ArchiveAt is never earlier than DeleteAt for a valid policy.
type Cutoffs struct {
	ArchiveAt time.Time `json:"archive_at"`
	DeleteAt  time.Time `json:"delete_at"`
}

// CutoffsAt computes the cutoffs of p relative to now.
func CutoffsAt(p *audit.RetentionPolicy, now time.Time) Cutoffs {
	now = audit.NormalizeTime(now)
	return Cutoffs{
		ArchiveAt: now.AddDate(0, 0, -p.ArchivePeriodDays),
		DeleteAt:  now.AddDate(0, 0, -p.RetentionPeriodDays),
	}
}

// ArchiveBand is [DeleteAt, ArchiveAt): rows due for export but not yet
// for deletion.
func (c Cutoffs) ArchiveBand() audit.TimeRange {
	return audit.TimeRange{From: c.DeleteAt, To: c.ArchiveAt}
}

// Expired covers every row strictly older than DeleteAt.
func (c Cutoffs) Expired() audit.TimeRange {
	return audit.TimeRange{To: c.DeleteAt}
}

// TableEvaluation counts eligible rows of one table.
type TableEvaluation struct {
	Table           string `json:"table"`
	ArchiveEligible int64  `json:"archive_eligible"`
	DeleteEligible  int64  `json:"delete_eligible"`
}

// Evaluation is the result of applying a policy at a point in time.
type Evaluation struct {
	PolicyID    string            `json:"policy_id"`
	PolicyName  string            `json:"policy_name"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
	Cutoffs     Cutoffs           `json:"cutoffs"`
	Tables      []TableEvaluation `json:"tables"`
}

// Evaluate counts, per applicable table, the rows in the archive band and
// the rows past retention.
func (e *Engine) Evaluate(ctx context.Context, p *audit.RetentionPolicy, now time.Time) (*Evaluation, error) {
	cut := CutoffsAt(p, now)
	out := &Evaluation{
		PolicyID:    p.ID,
		PolicyName:  p.Name,
		EvaluatedAt: audit.NormalizeTime(now),
		Cutoffs:     cut,
		Tables:      make([]TableEvaluation, 0, len(p.ApplicableTables)),
	}

	for _, table := range p.ApplicableTables {
		archivable, err := e.store.CountRows(ctx, table, cut.ArchiveBand())
		if err != nil {
			return nil, fmt.Errorf("count archive band of %s: %w", table, err)
		}
		expired, err := e.store.CountRows(ctx, table, cut.Expired())
		if err != nil {
			return nil, fmt.Errorf("count expired rows of %s: %w", table, err)
		}
		out.Tables = append(out.Tables, TableEvaluation{
			Table:           table,
			ArchiveEligible: archivable,
			DeleteEligible:  expired,
		})
	}
	return out, nil
}

// EvaluateAll evaluates every active policy.
func (e *Engine) EvaluateAll(ctx context.Context, now time.Time) ([]Evaluation, error) {
	policies, err := e.store.ListPolicies(ctx, audit.PolicyFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}

	out := make([]Evaluation, 0, len(policies))
	for i := range policies {
		ev, err := e.Evaluate(ctx, &policies[i], now)
		if err != nil {
			return nil, fmt.Errorf("evaluate policy %s: %w", policies[i].ID, err)
		}
		out = append(out, *ev)
	}
	return out, nil
}
