// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package hashchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// Severity escalates to high above this many tampered records in one run.
const tamperHighThreshold = 10

// VerifierStore is the subset of audit.Store the verifier needs.
type VerifierStore interface {
	GetRecord(ctx context.Context, id string) (*audit.Record, error)
	GetHashByRecordID(ctx context.Context, auditLogID string) (*audit.HashRecord, error)
	HashValueExists(ctx context.Context, hashValue string) (bool, error)
	SetHashVerified(ctx context.Context, auditLogID string, verified bool) error
	ListRecordsWithHashes(ctx context.Context, limit int) ([]audit.RecordWithHash, error)
	CountRecordsWithoutHash(ctx context.Context) (int64, error)
}

// EventRecorder persists security findings. Satisfied by *secevent.Manager.
type EventRecorder interface {
	Create(ctx context.Context, ev *audit.SecurityEvent) (*audit.SecurityEvent, error)
}

// VerifyResult is the outcome of checking one record. A mismatch is a
// result, not an error.
type VerifyResult struct {
	AuditLogID   string `json:"audit_log_id"`
	Valid        bool   `json:"valid"`
	HashExists   bool   `json:"hash_exists"`
	HashMatches  bool   `json:"hash_matches"`
	ChainValid   bool   `json:"chain_valid"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IntegrityReport summarizes a bulk verification run.
type IntegrityReport struct {
	TotalChecked    int64     `json:"total_checked"`
	Verified        int64     `json:"verified"`
	Tampered        int64     `json:"tampered"`
	MissingHashes   int64     `json:"missing_hashes"`
	IntegrityScore  float64   `json:"integrity_score"`
	TamperedRecords []string  `json:"tampered_records,omitempty"`
	SecurityEventID string    `json:"security_event_id,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Verifier recomputes stored hashes and checks chain linkage.
type Verifier struct {
	store  VerifierStore
	events EventRecorder
	now    func() time.Time
}

// NewVerifier creates a verifier. events may be nil, in which case
// tampering is reported but no security event is raised.
func NewVerifier(store VerifierStore, events EventRecorder) *Verifier {
	return &Verifier{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// VerifyOne checks the record auditLogID against its hash record.
func (v *Verifier) VerifyOne(ctx context.Context, auditLogID string) (*VerifyResult, error) {
	rec, err := v.store.GetRecord(ctx, auditLogID)
	if err != nil {
		return nil, fmt.Errorf("load audit record: %w", err)
	}

	hr, err := v.store.GetHashByRecordID(ctx, auditLogID)
	if errors.Is(err, audit.ErrNotFound) {
		return &VerifyResult{
			AuditLogID:   auditLogID,
			ErrorMessage: "no hash record for audit record",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load hash record: %w", err)
	}

	return v.check(ctx, rec, hr)
}

func (v *Verifier) check(ctx context.Context, rec *audit.Record, hr *audit.HashRecord) (*VerifyResult, error) {
	res := &VerifyResult{AuditLogID: rec.ID, HashExists: true}

	computed, err := ComputeHashWith(hr.HashAlgorithm, rec, hr.PreviousHash)
	if err != nil {
		return nil, err
	}
	res.HashMatches = computed == hr.HashValue

	switch {
	case hr.PreviousHash == nil:
		// Only the first entry may lack a predecessor.
		res.ChainValid = hr.Sequence <= 1
	default:
		exists, err := v.store.HashValueExists(ctx, *hr.PreviousHash)
		if err != nil {
			return nil, fmt.Errorf("check previous hash: %w", err)
		}
		res.ChainValid = exists
	}

	res.Valid = res.HashExists && res.HashMatches && res.ChainValid
	switch {
	case !res.HashMatches:
		res.ErrorMessage = "hash mismatch: record content changed after hashing"
	case !res.ChainValid:
		res.ErrorMessage = "chain broken: previous hash not found"
	}
	return res, nil
}

// VerifyBulk checks up to limit of the most recent hashed records, updates
// their verified flags and raises one tamper_detected event when any check
// fails. Cancelling ctx stops the run and returns the context error.
func (v *Verifier) VerifyBulk(ctx context.Context, limit int) (*IntegrityReport, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()
	log := logging.Ctx(ctx)

	report, err := v.scan(ctx, limit, true)
	if err != nil {
		cancelled := ctx.Err() != nil
		metrics.RecordVerificationFailure(cancelled)
		if cancelled {
			log.Warn().Msg("Bulk verification cancelled")
		}
		return nil, err
	}

	if report.Tampered > 0 && v.events != nil {
		ev, err := v.events.Create(ctx, tamperEvent(report))
		if err != nil {
			log.Error().Err(err).Int64("tampered", report.Tampered).Msg("Failed to record tamper event")
		} else {
			report.SecurityEventID = ev.ID
		}
	}

	metrics.RecordVerification(report.Verified, report.Tampered, report.MissingHashes, report.IntegrityScore, time.Since(start))

	evt := log.Info()
	if report.Tampered > 0 {
		evt = log.Warn()
	}
	evt.Int64("checked", report.TotalChecked).
		Int64("verified", report.Verified).
		Int64("tampered", report.Tampered).
		Int64("missing_hashes", report.MissingHashes).
		Float64("integrity_score", report.IntegrityScore).
		Dur("duration", time.Since(start)).
		Msg("Bulk verification complete")

	return report, nil
}

// Check runs the same checks as VerifyBulk but writes nothing: verified
// flags are left as stored, no security event is raised and no
// verification metrics are recorded.
func (v *Verifier) Check(ctx context.Context, limit int) (*IntegrityReport, error) {
	report, err := v.scan(ctx, limit, false)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Debug().
		Int64("checked", report.TotalChecked).
		Int64("tampered", report.Tampered).
		Msg("Integrity check complete")
	return report, nil
}

// scan checks the most recent hashed records. With persist set, verified
// flags that disagree with the outcome are rewritten.
func (v *Verifier) scan(ctx context.Context, limit int, persist bool) (*IntegrityReport, error) {
	log := logging.Ctx(ctx)

	pairs, err := v.store.ListRecordsWithHashes(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list hashed records: %w", err)
	}

	report := &IntegrityReport{CheckedAt: audit.NormalizeTime(v.now())}

	for i := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := &pairs[i]
		res, err := v.check(ctx, &p.Record, &p.Hash)
		valid := false
		switch {
		case errors.Is(err, audit.ErrValidation):
			// Unknown algorithm: integrity cannot be shown.
			log.Warn().Err(err).Str("audit_log_id", p.Record.ID).Msg("Cannot verify audit record")
		case err != nil:
			return nil, err
		default:
			valid = res.Valid
		}

		report.TotalChecked++
		if valid {
			report.Verified++
		} else {
			report.Tampered++
			report.TamperedRecords = append(report.TamperedRecords, p.Record.ID)
		}

		if persist && p.Hash.Verified != valid {
			if err := v.store.SetHashVerified(ctx, p.Record.ID, valid); err != nil {
				log.Warn().Err(err).Str("audit_log_id", p.Record.ID).Msg("Failed to update verified flag")
			}
		}
	}

	missing, err := v.store.CountRecordsWithoutHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unhashed records: %w", err)
	}
	report.MissingHashes = missing
	report.IntegrityScore = IntegrityScore(report.Verified, report.Tampered)
	return report, nil
}

// IntegrityScore is verified/(verified+tampered) as a percentage, 0 when
// nothing was checked.
func IntegrityScore(verified, tampered int64) float64 {
	total := verified + tampered
	if total == 0 {
		return 0
	}
	return float64(verified) / float64(total) * 100
}

func tamperEvent(report *IntegrityReport) *audit.SecurityEvent {
	severity := audit.SeverityMedium
	if report.Tampered > tamperHighThreshold {
		severity = audit.SeverityHigh
	}
	return &audit.SecurityEvent{
		EventType:       audit.EventTamperDetected,
		Severity:        severity,
		Description:     fmt.Sprintf("Integrity verification found %d tampered audit records", report.Tampered),
		AffectedRecords: append([]string(nil), report.TamperedRecords...),
		Metadata: map[string]interface{}{
			"tampered":        report.Tampered,
			"verified":        report.Verified,
			"integrity_score": report.IntegrityScore,
		},
	}
}
