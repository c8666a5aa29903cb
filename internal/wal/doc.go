// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package wal provides the chain append journal, a write-ahead log on
// BadgerDB.
//
// An audit record is stored before its hash is computed. If the process
// dies in between, the record would silently stay unchained. The hash chain
// writer journals every submitted append first and removes the entry once
// the hash is written:
//
//	Submit → Journal Append (fsync) → Hash computed and stored → Journal Remove
//	                                                ↓ (crash or store failure)
//	                                      Entry replayed on next start
//
// # Ordering
//
// Keys are "pending:" plus a zero-padded BadgerDB sequence number, so
// Pending and Replay return entries in the order they were appended and the
// chain is rebuilt in submission order. Replay stops at the first failing
// entry rather than skipping it.
//
// # Usage
//
//	j, err := wal.Open(wal.ConfigFrom(cfg.Chain.Journal))
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//
//	entry, err := j.Append(ctx, rec.ID)
//	// ... append to the chain ...
//	err = j.Remove(ctx, entry.Seq)
//
// # Metrics
//
// chain_journal_* Prometheus metrics track appends, removals, failed
// attempts, pending entries and replays.
package wal
