// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package wal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

// Test helpers

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func appendIDs(ctx context.Context, t *testing.T, j *Journal, ids ...string) []*Entry {
	t.Helper()
	entries := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := j.Append(ctx, id)
		if err != nil {
			t.Fatalf("Append(%s) error: %v", id, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func pendingIDs(ctx context.Context, t *testing.T, j *Journal) []string {
	t.Helper()
	entries, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.AuditLogID
	}
	return ids
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"path", Config{Path: "/data/journal"}, false},
		{"in memory without path", Config{InMemory: true}, false},
		{"missing path", Config{}, true},
		{"bad gc ratio", Config{Path: "/data/journal", GCRatio: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (cfg.GCRatio == 0 || cfg.CloseTimeout == 0) {
				t.Error("Validate() should fill defaults")
			}
		})
	}
}

func TestJournal_Append(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t)

	entries := appendIDs(ctx, t, j, "a", "b")
	if entries[0].Seq == 0 {
		t.Error("expected non-zero sequence")
	}
	if entries[1].Seq <= entries[0].Seq {
		t.Errorf("sequences not increasing: %d then %d", entries[0].Seq, entries[1].Seq)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	if _, err := j.Append(ctx, ""); err == nil {
		t.Error("expected error for empty audit log id")
	}
}

func TestJournal_PendingOrder(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t)

	// More than one sequence lease and more than nine entries, so a
	// non-padded key would sort 10 before 2.
	want := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		want = append(want, fmt.Sprintf("rec-%d", i))
	}
	appendIDs(ctx, t, j, want...)

	got := pendingIDs(ctx, t, j)
	if len(got) != len(want) {
		t.Fatalf("Pending() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pending()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestJournal_Remove(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t)

	entries := appendIDs(ctx, t, j, "a", "b", "c")
	if err := j.Remove(ctx, entries[1].Seq); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	got := pendingIDs(ctx, t, j)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Pending() = %v, want [a c]", got)
	}

	if err := j.Remove(ctx, entries[1].Seq); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Remove() error = %v, want ErrEntryNotFound", err)
	}
}

func TestJournal_RecordFailure(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t)

	entries := appendIDs(ctx, t, j, "a")
	if err := j.RecordFailure(ctx, entries[0].Seq, "store unavailable"); err != nil {
		t.Fatalf("RecordFailure() error: %v", err)
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", pending[0].Attempts)
	}
	if pending[0].LastError != "store unavailable" {
		t.Errorf("LastError = %q", pending[0].LastError)
	}

	if err := j.RecordFailure(ctx, 9999, "x"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("RecordFailure(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestJournal_Stats(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t)

	entries := appendIDs(ctx, t, j, "a", "b")
	_ = j.Remove(ctx, entries[0].Seq)

	stats := j.Stats()
	if stats.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1", stats.PendingCount)
	}
	if stats.TotalAppends != 2 || stats.TotalRemoves != 1 {
		t.Errorf("TotalAppends = %d, TotalRemoves = %d", stats.TotalAppends, stats.TotalRemoves)
	}
}

func TestJournal_Close(t *testing.T) {
	ctx := context.Background()
	j, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if _, err := j.Append(ctx, "a"); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Append after close error = %v, want ErrJournalClosed", err)
	}
	if _, err := j.Pending(ctx); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Pending after close error = %v, want ErrJournalClosed", err)
	}
	if err := j.RunGC(); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("RunGC after close error = %v, want ErrJournalClosed", err)
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Path: filepath.Join(t.TempDir(), "journal")}

	j, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	first := appendIDs(ctx, t, j, "a", "b")
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	j, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer j.Close()

	if got := pendingIDs(ctx, t, j); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Pending() after reopen = %v, want [a b]", got)
	}

	// New entries sort after the ones from the previous run.
	next := appendIDs(ctx, t, j, "c")
	if next[0].Seq <= first[1].Seq {
		t.Errorf("sequence after reopen = %d, want > %d", next[0].Seq, first[1].Seq)
	}
	if got := pendingIDs(ctx, t, j); got[2] != "c" {
		t.Errorf("Pending() = %v, want c last", got)
	}

	if err := j.RunGC(); err != nil {
		t.Errorf("RunGC() error: %v", err)
	}
}

func TestJournal_AppendConcurrent(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t)

	const goroutines, perGoroutine = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if _, err := j.Append(ctx, fmt.Sprintf("g%d-%d", g, i)); err != nil {
					t.Errorf("Append error: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	entries, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(entries) != goroutines*perGoroutine {
		t.Fatalf("Pending() = %d entries, want %d", len(entries), goroutines*perGoroutine)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}
