// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// storeFactory returns an empty store for one subtest.
type storeFactory func(t *testing.T) Store

// testBase is a fixed reference time so range filters are deterministic.
var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestRecord(id string, at time.Time) Record {
	return Record{
		ID:        id,
		TableName: "permits",
		RecordID:  "permit-" + id,
		Action:    ActionUpdate,
		OldValues: map[string]interface{}{"status": "draft"},
		NewValues: map[string]interface{}{"status": "submitted", "fee": 125.5},
		ChangedBy: "user-1",
		IPAddress: "10.0.0.1",
		ChangedAt: at,
	}
}

func mustInsertRecords(t *testing.T, s Store, recs ...Record) {
	t.Helper()
	for i := range recs {
		if err := s.InsertRecord(context.Background(), &recs[i]); err != nil {
			t.Fatalf("InsertRecord(%s) failed: %v", recs[i].ID, err)
		}
	}
}

// runStoreSuite runs the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("records", func(t *testing.T) { testStoreRecords(t, newStore(t)) })
	t.Run("zero limit is unbounded", func(t *testing.T) { testStoreUnboundedQuery(t, newStore(t)) })
	t.Run("grouped counts", func(t *testing.T) { testStoreGrouped(t, newStore(t)) })
	t.Run("hashes", func(t *testing.T) { testStoreHashes(t, newStore(t)) })
	t.Run("security events", func(t *testing.T) { testStoreEvents(t, newStore(t)) })
	t.Run("policies", func(t *testing.T) { testStorePolicies(t, newStore(t)) })
	t.Run("jobs", func(t *testing.T) { testStoreJobs(t, newStore(t)) })
	t.Run("retention rows", func(t *testing.T) { testStoreRows(t, newStore(t)) })
}

func testStoreRecords(t *testing.T, s Store) {
	ctx := context.Background()
	mustInsertRecords(t, s,
		newTestRecord("r1", testBase.Add(-3*time.Hour)),
		newTestRecord("r2", testBase.Add(-2*time.Hour)),
		newTestRecord("r3", testBase.Add(-time.Hour)),
	)

	got, err := s.GetRecord(ctx, "r2")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.RecordID != "permit-r2" || got.Action != ActionUpdate {
		t.Errorf("GetRecord returned %+v", got)
	}
	if !got.ChangedAt.Equal(testBase.Add(-2 * time.Hour)) {
		t.Errorf("ChangedAt = %v", got.ChangedAt)
	}
	if got.NewValues["status"] != "submitted" {
		t.Errorf("NewValues = %v", got.NewValues)
	}

	if _, err := s.GetRecord(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRecord(missing) error = %v, want ErrNotFound", err)
	}

	recs, err := s.QueryRecords(ctx, RecordFilter{
		Range:     TimeRange{From: testBase.Add(-150 * time.Minute)},
		OrderDesc: true,
	})
	if err != nil {
		t.Fatalf("QueryRecords failed: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "r3" || recs[1].ID != "r2" {
		t.Errorf("QueryRecords newest first = %v", recordIDs(recs))
	}

	recs, err = s.QueryRecords(ctx, RecordFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("QueryRecords paginated failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "r2" {
		t.Errorf("QueryRecords offset 1 limit 1 = %v", recordIDs(recs))
	}

	n, err := s.CountRecords(ctx, RecordFilter{Range: TimeRange{To: testBase.Add(-2 * time.Hour)}})
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRecords before r2 = %d, want 1 (upper bound exclusive)", n)
	}

	inserted, err := s.InsertRecords(ctx, []Record{
		newTestRecord("r3", testBase),
		newTestRecord("r4", testBase),
	})
	if err != nil {
		t.Fatalf("InsertRecords failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("InsertRecords inserted %d, want 1 (existing id skipped)", inserted)
	}

	deleted, err := s.DeleteRecords(ctx, []string{"r1", "r2", "nope"})
	if err != nil {
		t.Fatalf("DeleteRecords failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteRecords = %d, want 2", deleted)
	}
}

func testStoreUnboundedQuery(t *testing.T, s Store) {
	ctx := context.Background()
	const n = 150
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = newTestRecord(fmt.Sprintf("bulk-%03d", i), testBase.Add(time.Duration(i)*time.Second))
	}
	if inserted, err := s.InsertRecords(ctx, recs); err != nil || inserted != n {
		t.Fatalf("InsertRecords = %d, %v; want %d", inserted, err, n)
	}

	got, err := s.QueryRecords(ctx, RecordFilter{})
	if err != nil {
		t.Fatalf("QueryRecords failed: %v", err)
	}
	if len(got) != n {
		t.Errorf("QueryRecords without limit = %d records, want all %d", len(got), n)
	}
}

func recordIDs(recs []Record) []string {
	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].ID
	}
	return ids
}

func testStoreGrouped(t *testing.T, s Store) {
	ctx := context.Background()
	var recs []Record
	for i := 0; i < 5; i++ {
		r := newTestRecord(fmt.Sprintf("a%d", i), testBase.Add(-time.Duration(i)*time.Minute))
		recs = append(recs, r)
	}
	for i := 0; i < 2; i++ {
		r := newTestRecord(fmt.Sprintf("b%d", i), testBase)
		r.ChangedBy = "user-2"
		r.Action = ActionDelete
		r.IPAddress = ""
		recs = append(recs, r)
	}
	old := newTestRecord("old", testBase.Add(-48*time.Hour))
	recs = append(recs, old)
	mustInsertRecords(t, s, recs...)

	groups, err := s.CountRecordsGrouped(ctx, TimeRange{From: testBase.Add(-time.Hour)}, GroupByActor, GroupByAction)
	if err != nil {
		t.Fatalf("CountRecordsGrouped failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %+v", groups)
	}
	if groups[0].Key[0] != "user-1" || groups[0].Key[1] != "update" || groups[0].Count != 5 {
		t.Errorf("largest group = %+v, want user-1/update/5", groups[0])
	}
	if groups[1].Count != 2 {
		t.Errorf("second group = %+v, want count 2", groups[1])
	}

	byIP, err := s.CountRecordsGrouped(ctx, TimeRange{From: testBase.Add(-time.Hour)}, GroupByActor, GroupByIP)
	if err != nil {
		t.Fatalf("CountRecordsGrouped by ip failed: %v", err)
	}
	for _, g := range byIP {
		if g.Key[0] == "user-2" && g.Key[1] != "" {
			t.Errorf("missing ip should group as empty string, got %q", g.Key[1])
		}
	}
}

func testStoreHashes(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.LatestHash(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestHash on empty chain error = %v, want ErrNotFound", err)
	}

	mustInsertRecords(t, s,
		newTestRecord("r1", testBase.Add(-2*time.Hour)),
		newTestRecord("r2", testBase.Add(-time.Hour)),
		newTestRecord("r3", testBase),
	)

	prev := "aaaa"
	hashes := []HashRecord{
		{ID: "h1", AuditLogID: "r1", HashValue: "aaaa", HashAlgorithm: "sha256", Sequence: 1, CreatedAt: testBase, Verified: true},
		{ID: "h2", AuditLogID: "r2", HashValue: "bbbb", HashAlgorithm: "sha256", PreviousHash: &prev, Sequence: 2, CreatedAt: testBase, Verified: true},
	}
	for i := range hashes {
		if err := s.InsertHash(ctx, &hashes[i]); err != nil {
			t.Fatalf("InsertHash(%s) failed: %v", hashes[i].ID, err)
		}
	}

	dup := HashRecord{ID: "h3", AuditLogID: "r1", HashValue: "cccc", HashAlgorithm: "sha256", Sequence: 3, CreatedAt: testBase}
	if err := s.InsertHash(ctx, &dup); !errors.Is(err, ErrStore) {
		t.Errorf("second hash for r1 error = %v, want ErrStore", err)
	}

	head, err := s.LatestHash(ctx)
	if err != nil {
		t.Fatalf("LatestHash failed: %v", err)
	}
	if head.Sequence != 2 || head.PreviousHash == nil || *head.PreviousHash != "aaaa" {
		t.Errorf("LatestHash = %+v", head)
	}

	genesis, err := s.GetHashByRecordID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetHashByRecordID failed: %v", err)
	}
	if genesis.PreviousHash != nil {
		t.Errorf("genesis previous hash = %v, want nil", *genesis.PreviousHash)
	}
	if _, err := s.GetHashByRecordID(ctx, "r3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetHashByRecordID(r3) error = %v, want ErrNotFound", err)
	}

	if ok, _ := s.HashValueExists(ctx, "bbbb"); !ok {
		t.Error("HashValueExists(bbbb) = false")
	}
	if ok, _ := s.HashValueExists(ctx, "zzzz"); ok {
		t.Error("HashValueExists(zzzz) = true")
	}

	if err := s.SetHashVerified(ctx, "r2", false); err != nil {
		t.Fatalf("SetHashVerified failed: %v", err)
	}
	if h, _ := s.GetHashByRecordID(ctx, "r2"); h == nil || h.Verified {
		t.Errorf("verified flag not cleared: %+v", h)
	}
	if err := s.SetHashVerified(ctx, "r3", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetHashVerified(r3) error = %v, want ErrNotFound", err)
	}

	joined, err := s.ListRecordsWithHashes(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecordsWithHashes failed: %v", err)
	}
	if len(joined) != 2 || joined[0].Record.ID != "r2" || joined[1].Record.ID != "r1" {
		t.Errorf("ListRecordsWithHashes order wrong: %+v", joined)
	}
	if joined[0].Hash.HashValue != "bbbb" {
		t.Errorf("joined hash = %q", joined[0].Hash.HashValue)
	}

	limited, _ := s.ListRecordsWithHashes(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d rows", len(limited))
	}

	if n, _ := s.CountHashes(ctx); n != 2 {
		t.Errorf("CountHashes = %d, want 2", n)
	}
	if n, _ := s.CountRecordsWithoutHash(ctx); n != 1 {
		t.Errorf("CountRecordsWithoutHash = %d, want 1", n)
	}
}

func testStoreEvents(t *testing.T, s Store) {
	ctx := context.Background()
	events := []SecurityEvent{
		{ID: "e1", EventType: EventTamperDetected, Severity: SeverityHigh, Description: "tamper",
			AffectedRecords: []string{"r1", "r2"}, DetectedAt: testBase.Add(-time.Hour),
			Metadata: map[string]interface{}{"tampered": float64(2)}},
		{ID: "e2", EventType: EventBulkModification, Severity: SeverityMedium, Description: "bulk",
			AffectedRecords: []string{}, DetectedAt: testBase, ActorID: "user-1"},
	}
	for i := range events {
		if err := s.InsertSecurityEvent(ctx, &events[i]); err != nil {
			t.Fatalf("InsertSecurityEvent failed: %v", err)
		}
	}

	got, err := s.GetSecurityEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("GetSecurityEvent failed: %v", err)
	}
	if len(got.AffectedRecords) != 2 || got.Metadata["tampered"] != float64(2) {
		t.Errorf("GetSecurityEvent = %+v", got)
	}

	high, _ := s.QuerySecurityEvents(ctx, SecurityEventFilter{Severity: SeverityHigh})
	if len(high) != 1 || high[0].ID != "e1" {
		t.Errorf("severity filter = %+v", high)
	}
	all, _ := s.QuerySecurityEvents(ctx, SecurityEventFilter{})
	if len(all) != 2 || all[0].ID != "e2" {
		t.Errorf("events should be newest first, got %+v", all)
	}

	changed, err := s.ResolveSecurityEvent(ctx, "e1", "analyst", testBase)
	if err != nil || !changed {
		t.Fatalf("ResolveSecurityEvent = %v, %v; want true, nil", changed, err)
	}
	changed, err = s.ResolveSecurityEvent(ctx, "e1", "someone-else", testBase.Add(time.Hour))
	if err != nil || changed {
		t.Errorf("second resolve = %v, %v; want false, nil", changed, err)
	}
	resolved, _ := s.GetSecurityEvent(ctx, "e1")
	if resolved.ResolvedBy != "analyst" || resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(testBase) {
		t.Errorf("first resolution must stick: %+v", resolved)
	}
	if _, err := s.ResolveSecurityEvent(ctx, "missing", "x", testBase); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolve missing error = %v, want ErrNotFound", err)
	}

	if n, _ := s.CountSecurityEvents(ctx, SecurityEventFilter{UnresolvedOnly: true}); n != 1 {
		t.Errorf("unresolved count = %d, want 1", n)
	}
}

func testStorePolicies(t *testing.T, s Store) {
	ctx := context.Background()
	policies := []RetentionPolicy{
		{ID: "p1", Name: "b-logs", RetentionPeriodDays: 30, ArchivePeriodDays: 7,
			ApplicableTables: []string{TableAuditLogs}, IsActive: true, CreatedAt: testBase, UpdatedAt: testBase},
		{ID: "p2", Name: "a-jobs", RetentionPeriodDays: 90, ArchivePeriodDays: 30, CompressionEnabled: true,
			ApplicableTables: []string{TableArchivalJobs}, IsActive: false, CreatedAt: testBase, UpdatedAt: testBase},
	}
	for i := range policies {
		if err := s.InsertPolicy(ctx, &policies[i]); err != nil {
			t.Fatalf("InsertPolicy failed: %v", err)
		}
	}

	all, _ := s.ListPolicies(ctx, PolicyFilter{})
	if len(all) != 2 || all[0].ID != "p2" {
		t.Errorf("ListPolicies should order by name, got %+v", all)
	}
	active, _ := s.ListPolicies(ctx, PolicyFilter{ActiveOnly: true})
	if len(active) != 1 || active[0].ID != "p1" {
		t.Errorf("ActiveOnly = %+v", active)
	}

	p, err := s.GetPolicy(ctx, "p2")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if !p.CompressionEnabled || p.ApplicableTables[0] != TableArchivalJobs {
		t.Errorf("GetPolicy = %+v", p)
	}

	p.IsActive = true
	p.RetentionPeriodDays = 120
	if err := s.UpdatePolicy(ctx, p); err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}
	if got, _ := s.GetPolicy(ctx, "p2"); got.RetentionPeriodDays != 120 || !got.IsActive {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := RetentionPolicy{ID: "nope", Name: "x", RetentionPeriodDays: 1, ApplicableTables: []string{TableAuditLogs}}
	if err := s.UpdatePolicy(ctx, &missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePolicy(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.DeletePolicy(ctx, "p1"); err != nil {
		t.Fatalf("DeletePolicy failed: %v", err)
	}
	if err := s.DeletePolicy(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePolicy error = %v, want ErrNotFound", err)
	}
}

func testStoreJobs(t *testing.T, s Store) {
	ctx := context.Background()
	jobs := []ArchivalJob{
		{ID: "j1", PolicyID: "p1", Status: JobCompleted, StartedAt: testBase.Add(-2 * time.Hour)},
		{ID: "j2", PolicyID: "p1", Status: JobRunning, StartedAt: testBase.Add(-time.Hour)},
		{ID: "j3", PolicyID: "p2", Status: JobFailed, StartedAt: testBase, ErrorMessage: "disk full"},
	}
	for i := range jobs {
		if err := s.InsertJob(ctx, &jobs[i]); err != nil {
			t.Fatalf("InsertJob failed: %v", err)
		}
	}

	byPolicy, _ := s.ListJobs(ctx, JobFilter{PolicyID: "p1"})
	if len(byPolicy) != 2 || byPolicy[0].ID != "j2" {
		t.Errorf("ListJobs newest first = %+v", byPolicy)
	}
	limited, _ := s.ListJobs(ctx, JobFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "j3" {
		t.Errorf("ListJobs limit 1 = %+v", limited)
	}

	done := testBase
	j2 := jobs[1]
	j2.Status = JobCompleted
	j2.CompletedAt = &done
	j2.RecordsArchived = 10
	j2.ArchiveLocation = "/archives/audit_logs_p1.json.gz"
	if err := s.UpdateJob(ctx, &j2); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	got, _ := s.GetJob(ctx, "j2")
	if got.Status != JobCompleted || got.RecordsArchived != 10 || got.CompletedAt == nil {
		t.Errorf("GetJob after update = %+v", got)
	}

	failed, _ := s.GetJob(ctx, "j3")
	if failed.ErrorMessage != "disk full" {
		t.Errorf("ErrorMessage = %q", failed.ErrorMessage)
	}

	ghost := ArchivalJob{ID: "ghost", PolicyID: "p1", Status: JobFailed, StartedAt: testBase}
	if err := s.UpdateJob(ctx, &ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateJob(missing) error = %v, want ErrNotFound", err)
	}
}

func testStoreRows(t *testing.T, s Store) {
	ctx := context.Background()
	mustInsertRecords(t, s,
		newTestRecord("r1", testBase.Add(-40*24*time.Hour)),
		newTestRecord("r2", testBase.Add(-10*24*time.Hour)),
		newTestRecord("r3", testBase),
	)

	if tables := s.RetainableTables(); len(tables) != 2 {
		t.Errorf("RetainableTables = %v", tables)
	}

	band := TimeRange{From: testBase.Add(-30 * 24 * time.Hour), To: testBase.Add(-7 * 24 * time.Hour)}
	n, err := s.CountRows(ctx, TableAuditLogs, band)
	if err != nil || n != 1 {
		t.Fatalf("CountRows = %d, %v; want 1", n, err)
	}

	rows, err := s.FetchRows(ctx, TableAuditLogs, TimeRange{To: testBase.Add(-30 * 24 * time.Hour)})
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID() != "r1" {
		t.Fatalf("FetchRows = %+v", rows)
	}

	deleted, err := s.DeleteRows(ctx, TableAuditLogs, []string{"r1"})
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteRows = %d, %v", deleted, err)
	}

	restored, err := s.InsertRows(ctx, TableAuditLogs, rows)
	if err != nil || restored != 1 {
		t.Fatalf("InsertRows = %d, %v", restored, err)
	}
	back, err := s.GetRecord(ctx, "r1")
	if err != nil {
		t.Fatalf("restored record missing: %v", err)
	}
	if !back.ChangedAt.Equal(testBase.Add(-40*24*time.Hour)) || back.NewValues["status"] != "submitted" {
		t.Errorf("restored record = %+v", back)
	}

	if _, err := s.CountRows(ctx, TableHashes, TimeRange{}); !errors.Is(err, ErrValidation) {
		t.Errorf("CountRows(hashes) error = %v, want ErrValidation", err)
	}
}
