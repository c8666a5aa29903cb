// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

//go:build integration

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/config"
)

func TestOpen_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "audit.duckdb")

	db, err := Open(ctx, config.DatabaseConfig{Path: path, MaxMemory: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	store := audit.NewDuckDBStore(db.Conn())
	if err := store.CreateTables(ctx); err != nil {
		t.Fatalf("CreateTables failed: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := db.Checkpoint(ctx); err != nil {
		t.Errorf("Checkpoint failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
