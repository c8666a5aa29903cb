// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package compliance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/hashchain"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/retention"
)

// DefaultIntegrityLimit bounds the verification pass embedded in a report.
const DefaultIntegrityLimit = 1000

// Store is the persistence the reporter reads.
type Store interface {
	QueryRecords(ctx context.Context, filter audit.RecordFilter) ([]audit.Record, error)
	CountRecords(ctx context.Context, filter audit.RecordFilter) (int64, error)
	CountHashes(ctx context.Context) (int64, error)
	CountRecordsWithoutHash(ctx context.Context) (int64, error)
	ListPolicies(ctx context.Context, filter audit.PolicyFilter) ([]audit.RetentionPolicy, error)
	CountRows(ctx context.Context, table string, r audit.TimeRange) (int64, error)
}

// Verifier runs a bounded, read-only integrity pass. Satisfied by
// *hashchain.Verifier.
type Verifier interface {
	Check(ctx context.Context, limit int) (*hashchain.IntegrityReport, error)
}

// EventSummary counts open security events. Satisfied by *secevent.Manager.
type EventSummary interface {
	OpenBySeverity(ctx context.Context, r audit.TimeRange) (map[audit.Severity]int64, error)
}

// Report is a point-in-time compliance report over [StartDate, EndDate).
type Report struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`

	// Compliant is false when any active policy has an issue.
	Compliant      bool                     `json:"compliant"`
	Summary        TrailSummary             `json:"summary"`
	AuditTrail     []audit.Record           `json:"audit_trail"`
	Policies       []PolicyCompliance       `json:"policies"`
	DataIntegrity  IntegritySummary         `json:"data_integrity"`
	SecurityEvents map[audit.Severity]int64 `json:"open_security_events"`
}

// TrailSummary aggregates the audit trail of the report window.
type TrailSummary struct {
	TotalRecords int64                  `json:"total_records"`
	ByAction     map[audit.Action]int64 `json:"by_action"`
	ByTable      map[string]int64       `json:"by_table"`
	UniqueActors int                    `json:"unique_actors"`
}

// PolicyCompliance is the retention status of one active policy.
type PolicyCompliance struct {
	PolicyID   string    `json:"policy_id"`
	PolicyName string    `json:"policy_name"`
	DeleteAt   time.Time `json:"delete_cutoff"`
	Compliant  bool      `json:"compliant"`
	Issues     []string  `json:"issues,omitempty"`
}

// IntegritySummary combines store-wide hash coverage with a bounded
// verification pass over the most recent records.
type IntegritySummary struct {
	TotalRecords int64 `json:"total_records"`

	// HashedRecords counts audit records that have a hash record, so it
	// never exceeds TotalRecords.
	HashedRecords int64 `json:"hashed_records"`
	MissingHashes int64 `json:"missing_hashes"`

	// ChainLength counts hash records, including those whose audit record
	// was archived and deleted.
	ChainLength    int64   `json:"chain_length"`
	Checked        int64   `json:"checked"`
	Violations     int64   `json:"integrity_violations"`
	IntegrityScore float64 `json:"integrity_score"`
	Error          string  `json:"error,omitempty"`
}

// Reporter builds compliance reports.
type Reporter struct {
	store          Store
	verifier       Verifier
	events         EventSummary
	integrityLimit int
	now            func() time.Time
}

// NewReporter creates a reporter. verifier and events may be nil, in which
// case the corresponding sections are left empty.
func NewReporter(store Store, verifier Verifier, events EventSummary, integrityLimit int) *Reporter {
	if integrityLimit <= 0 {
		integrityLimit = DefaultIntegrityLimit
	}
	return &Reporter{
		store:          store,
		verifier:       verifier,
		events:         events,
		integrityLimit: integrityLimit,
		now:            time.Now,
	}
}

// GenerateReport returns the full audit trail of [start, end) with retention
// compliance per active policy, a data integrity summary and the open
// security events of the window. The trail is unbounded; callers bound the
// date range instead.
func (r *Reporter) GenerateReport(ctx context.Context, start, end time.Time) (*Report, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, audit.Validationf("report window must have start before end")
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)

	window := audit.TimeRange{From: audit.NormalizeTime(start), To: audit.NormalizeTime(end)}
	now := audit.NormalizeTime(r.now())

	trail, err := r.store.QueryRecords(ctx, audit.RecordFilter{Range: window})
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}

	report := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: now,
		StartDate:   window.From,
		EndDate:     window.To,
		Compliant:   true,
		AuditTrail:  trail,
		Summary:     summarize(trail),
	}

	report.Policies, err = r.checkPolicies(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, p := range report.Policies {
		if !p.Compliant {
			report.Compliant = false
		}
	}

	report.DataIntegrity, err = r.integrity(ctx)
	if err != nil {
		return nil, err
	}

	if r.events != nil {
		report.SecurityEvents, err = r.events.OpenBySeverity(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("summarize security events: %w", err)
		}
	}

	logging.Ctx(ctx).Info().
		Str("report_id", report.ID).
		Time("start", report.StartDate).
		Time("end", report.EndDate).
		Int64("records", report.Summary.TotalRecords).
		Int("policies", len(report.Policies)).
		Bool("compliant", report.Compliant).
		Float64("integrity_score", report.DataIntegrity.IntegrityScore).
		Msg("Compliance report generated")

	return report, nil
}

// checkPolicies flags every active policy that still has rows older than
// its retention cutoff in an applicable table.
func (r *Reporter) checkPolicies(ctx context.Context, now time.Time) ([]PolicyCompliance, error) {
	policies, err := r.store.ListPolicies(ctx, audit.PolicyFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}

	out := make([]PolicyCompliance, 0, len(policies))
	for i := range policies {
		p := &policies[i]
		cut := retention.CutoffsAt(p, now)
		status := PolicyCompliance{
			PolicyID:   p.ID,
			PolicyName: p.Name,
			DeleteAt:   cut.DeleteAt,
			Compliant:  true,
		}
		for _, table := range p.ApplicableTables {
			n, err := r.store.CountRows(ctx, table, cut.Expired())
			if err != nil {
				return nil, fmt.Errorf("check policy %s on %s: %w", p.ID, table, err)
			}
			if n > 0 {
				status.Compliant = false
				status.Issues = append(status.Issues, fmt.Sprintf(
					"%s: %d records older than the %d-day retention period",
					table, n, p.RetentionPeriodDays))
			}
		}
		out = append(out, status)
	}
	return out, nil
}

func (r *Reporter) integrity(ctx context.Context) (IntegritySummary, error) {
	var s IntegritySummary
	var err error

	if s.TotalRecords, err = r.store.CountRecords(ctx, audit.RecordFilter{}); err != nil {
		return s, fmt.Errorf("count records: %w", err)
	}
	if s.ChainLength, err = r.store.CountHashes(ctx); err != nil {
		return s, fmt.Errorf("count hashes: %w", err)
	}
	if s.MissingHashes, err = r.store.CountRecordsWithoutHash(ctx); err != nil {
		return s, fmt.Errorf("count unhashed records: %w", err)
	}
	s.HashedRecords = s.TotalRecords - s.MissingHashes

	if r.verifier == nil {
		return s, nil
	}
	rep, err := r.verifier.Check(ctx, r.integrityLimit)
	if err != nil {
		if ctx.Err() != nil {
			return s, err
		}
		// Report what is known rather than failing the whole report.
		s.Error = err.Error()
		logging.Ctx(ctx).Warn().Err(err).Msg("Integrity verification for compliance report failed")
		return s, nil
	}
	s.Checked = rep.TotalChecked
	s.Violations = rep.Tampered
	s.IntegrityScore = rep.IntegrityScore
	return s, nil
}

func summarize(trail []audit.Record) TrailSummary {
	s := TrailSummary{
		TotalRecords: int64(len(trail)),
		ByAction:     make(map[audit.Action]int64),
		ByTable:      make(map[string]int64),
	}
	actors := make(map[string]struct{})
	for i := range trail {
		s.ByAction[trail[i].Action]++
		s.ByTable[trail[i].TableName]++
		actors[trail[i].ChangedBy] = struct{}{}
	}
	s.UniqueActors = len(actors)
	return s
}

// Issues returns every issue of the report, sorted, prefixed with the
// policy name.
func (rep *Report) Issues() []string {
	var out []string
	for _, p := range rep.Policies {
		for _, issue := range p.Issues {
			out = append(out, p.PolicyName+": "+issue)
		}
	}
	sort.Strings(out)
	return out
}
