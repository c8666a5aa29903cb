// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/hashchain"
	"github.com/tomtom215/auditkeep/internal/secevent"
)

var (
	testNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	day     = 24 * time.Hour
)

type stubVerifier struct {
	report *hashchain.IntegrityReport
	err    error
	limit  int
}

func (s *stubVerifier) Check(_ context.Context, limit int) (*hashchain.IntegrityReport, error) {
	s.limit = limit
	return s.report, s.err
}

func newTestReporter(store *audit.MemoryStore, v Verifier, ev EventSummary) *Reporter {
	r := NewReporter(store, v, ev, 0)
	r.now = func() time.Time { return testNow }
	return r
}

func insertRecord(t *testing.T, store *audit.MemoryStore, id, table string, action audit.Action, actor string, age time.Duration) {
	t.Helper()
	rec := &audit.Record{
		ID:        id,
		TableName: table,
		RecordID:  "row-" + id,
		Action:    action,
		NewValues: map[string]interface{}{"v": 1},
		ChangedBy: actor,
		ChangedAt: testNow.Add(-age),
	}
	if err := store.InsertRecord(context.Background(), rec); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}
}

func insertPolicy(t *testing.T, store *audit.MemoryStore, id string, retentionDays int, active bool) {
	t.Helper()
	p := &audit.RetentionPolicy{
		ID:                  id,
		Name:                "policy-" + id,
		RetentionPeriodDays: retentionDays,
		ArchivePeriodDays:   retentionDays / 2,
		ApplicableTables:    []string{audit.TableAuditLogs},
		IsActive:            active,
	}
	if err := store.InsertPolicy(context.Background(), p); err != nil {
		t.Fatalf("InsertPolicy failed: %v", err)
	}
}

func TestGenerateReport_RetentionViolation(t *testing.T) {
	store := audit.NewMemoryStore()
	insertPolicy(t, store, "p30", 30, true)
	insertRecord(t, store, "old", "permits", audit.ActionUpdate, "clerk-1", 40*day)
	insertRecord(t, store, "new", "permits", audit.ActionCreate, "clerk-2", 2*day)

	r := newTestReporter(store, nil, nil)
	rep, err := r.GenerateReport(context.Background(), testNow.Add(-60*day), testNow)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	if rep.Compliant {
		t.Error("report should be non-compliant")
	}
	if len(rep.Policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(rep.Policies))
	}
	p := rep.Policies[0]
	if p.Compliant {
		t.Error("policy should be non-compliant")
	}
	if len(p.Issues) != 1 || !strings.Contains(p.Issues[0], audit.TableAuditLogs) {
		t.Errorf("issues = %v, want one naming %s", p.Issues, audit.TableAuditLogs)
	}
	if !strings.Contains(p.Issues[0], "1 records") {
		t.Errorf("issue %q should carry the offending count", p.Issues[0])
	}
	if len(rep.Issues()) != 1 || !strings.HasPrefix(rep.Issues()[0], "policy-p30: ") {
		t.Errorf("Issues() = %v", rep.Issues())
	}
}

func TestGenerateReport_Compliant(t *testing.T) {
	store := audit.NewMemoryStore()
	insertPolicy(t, store, "p30", 30, true)
	insertPolicy(t, store, "inactive", 1, false)
	insertRecord(t, store, "a", "permits", audit.ActionUpdate, "clerk-1", 10*day)

	rep, err := newTestReporter(store, nil, nil).GenerateReport(context.Background(), testNow.Add(-30*day), testNow)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !rep.Compliant || len(rep.Policies) != 1 || !rep.Policies[0].Compliant {
		t.Errorf("report = %+v, want compliant with only the active policy", rep.Policies)
	}
	if want := testNow.AddDate(0, 0, -30); !rep.Policies[0].DeleteAt.Equal(want) {
		t.Errorf("DeleteAt = %v, want %v", rep.Policies[0].DeleteAt, want)
	}
}

func TestGenerateReport_AuditTrailWindow(t *testing.T) {
	store := audit.NewMemoryStore()
	for i := 0; i < 12; i++ {
		action := audit.ActionUpdate
		if i%4 == 0 {
			action = audit.ActionDelete
		}
		table := "permits"
		if i%3 == 0 {
			table = "inspections"
		}
		insertRecord(t, store, fmt.Sprintf("r%02d", i), table, action, fmt.Sprintf("actor-%d", i%5), time.Duration(i)*day)
	}

	// Window [now-6d, now-1d) holds ages 2..6 days plus the record exactly at 6 days.
	start := testNow.Add(-6 * day)
	end := testNow.Add(-1 * day)
	rep, err := newTestReporter(store, nil, nil).GenerateReport(context.Background(), start, end)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	if rep.Summary.TotalRecords != 5 || len(rep.AuditTrail) != 5 {
		t.Fatalf("trail = %d records, want 5", len(rep.AuditTrail))
	}
	for _, rec := range rep.AuditTrail {
		if rec.ChangedAt.Before(start) || !rec.ChangedAt.Before(end) {
			t.Errorf("record %s at %v outside window", rec.ID, rec.ChangedAt)
		}
	}
	if rep.Summary.ByAction[audit.ActionDelete] != 1 || rep.Summary.ByAction[audit.ActionUpdate] != 4 {
		t.Errorf("ByAction = %v", rep.Summary.ByAction)
	}
	if rep.Summary.ByTable["inspections"] != 2 || rep.Summary.ByTable["permits"] != 3 {
		t.Errorf("ByTable = %v", rep.Summary.ByTable)
	}
	if rep.Summary.UniqueActors != 5 {
		t.Errorf("UniqueActors = %d, want 5", rep.Summary.UniqueActors)
	}
}

func seedHashedRecords(t *testing.T, store *audit.MemoryStore, n int) {
	t.Helper()
	engine, err := hashchain.NewEngine(store, "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("rec-%d", i)
		insertRecord(t, store, id, "permits", audit.ActionUpdate, "clerk-1", time.Duration(n-i)*time.Hour)
		if _, err := engine.AppendRecord(context.Background(), id); err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
	}
}

func TestGenerateReport_IntegrityFromVerifier(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	seedHashedRecords(t, store, 10)
	insertRecord(t, store, "unhashed", "permits", audit.ActionCreate, "clerk-1", time.Minute)
	store.UpdateRecordForTesting("rec-4", func(r *audit.Record) { r.ChangedBy = "mallory" })
	store.UpdateRecordForTesting("rec-7", func(r *audit.Record) { r.NewValues = map[string]interface{}{"v": 2} })

	events := secevent.NewManager(store, nil)
	verifier := hashchain.NewVerifier(store, events)

	rep, err := newTestReporter(store, verifier, events).GenerateReport(ctx, testNow.Add(-day), testNow)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	di := rep.DataIntegrity
	if di.TotalRecords != 11 || di.HashedRecords != 10 || di.MissingHashes != 1 || di.ChainLength != 10 {
		t.Errorf("coverage = %+v, want 11 total, 10 hashed, 1 missing, chain of 10", di)
	}
	if di.Checked != 10 || di.Violations != 2 || di.IntegrityScore != 80 {
		t.Errorf("verification = %+v, want 10 checked, 2 violations, score 80", di)
	}
}

func TestGenerateReport_IntegrityIsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	seedHashedRecords(t, store, 3)
	store.UpdateRecordForTesting("rec-1", func(r *audit.Record) { r.ChangedBy = "mallory" })

	events := secevent.NewManager(store, nil)
	r := newTestReporter(store, hashchain.NewVerifier(store, events), events)

	for i := 0; i < 3; i++ {
		rep, err := r.GenerateReport(ctx, testNow.Add(-day), testNow)
		if err != nil {
			t.Fatalf("GenerateReport #%d failed: %v", i+1, err)
		}
		if rep.DataIntegrity.Violations != 1 {
			t.Errorf("report #%d violations = %d, want 1", i+1, rep.DataIntegrity.Violations)
		}
	}

	n, err := store.CountSecurityEvents(ctx, audit.SecurityEventFilter{})
	if err != nil {
		t.Fatalf("CountSecurityEvents failed: %v", err)
	}
	if n != 0 {
		t.Errorf("security events after 3 reports = %d, want 0", n)
	}
	hr, err := store.GetHashByRecordID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetHashByRecordID failed: %v", err)
	}
	if !hr.Verified {
		t.Error("report generation must not rewrite the verified flag")
	}
}

func TestGenerateReport_ChainOutlivesDeletedRecords(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	seedHashedRecords(t, store, 5)
	if _, err := store.DeleteRecords(ctx, []string{"rec-0", "rec-1", "rec-2"}); err != nil {
		t.Fatalf("DeleteRecords failed: %v", err)
	}

	rep, err := newTestReporter(store, nil, nil).GenerateReport(ctx, testNow.Add(-day), testNow)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	di := rep.DataIntegrity
	if di.TotalRecords != 2 || di.HashedRecords != 2 || di.MissingHashes != 0 {
		t.Errorf("coverage = %+v, want 2 total, 2 hashed, 0 missing", di)
	}
	if di.ChainLength != 5 {
		t.Errorf("ChainLength = %d, want 5", di.ChainLength)
	}
	if di.HashedRecords > di.TotalRecords {
		t.Errorf("HashedRecords %d exceeds TotalRecords %d", di.HashedRecords, di.TotalRecords)
	}
}

func TestGenerateReport_VerifierFailureIsRecorded(t *testing.T) {
	store := audit.NewMemoryStore()
	v := &stubVerifier{err: errors.New("verifier offline")}

	rep, err := NewReporter(store, v, nil, 250).GenerateReport(context.Background(), testNow.Add(-day), testNow)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if rep.DataIntegrity.Error != "verifier offline" {
		t.Errorf("DataIntegrity.Error = %q", rep.DataIntegrity.Error)
	}
	if v.limit != 250 {
		t.Errorf("Check limit = %d, want 250", v.limit)
	}
}

func TestGenerateReport_InvalidWindow(t *testing.T) {
	r := newTestReporter(audit.NewMemoryStore(), nil, nil)

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"end before start", testNow, testNow.Add(-day)},
		{"empty window", testNow, testNow},
		{"zero start", time.Time{}, testNow},
	}
	for _, tt := range tests {
		if _, err := r.GenerateReport(context.Background(), tt.start, tt.end); !errors.Is(err, audit.ErrValidation) {
			t.Errorf("%s: error = %v, want ErrValidation", tt.name, err)
		}
	}
}
