// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package database opens the DuckDB database that backs audit.DuckDBStore.

It owns connection concerns only: DSN construction, pool sizing, the data
directory and a checkpoint on shutdown. Schema and queries live in the
audit package.

Usage:

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	store := audit.NewDuckDBStore(db.Conn())
	if err := store.CreateTables(ctx); err != nil {
	    return err
	}

Set DUCKDB_PATH=:memory: for an ephemeral database.
*/
package database
