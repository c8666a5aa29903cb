// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package hashchain makes the audit trail tamper-evident.
//
// Every audit record gets one HashRecord whose digest covers the record's
// canonical JSON and the digest of the entry before it:
//
//	hash(n) = H(canonical(record n) || hash(n-1))
//
// Changing a stored record breaks its own digest. Deleting or rewriting a
// hash record breaks the link from its successor.
//
// # Components
//
//   - Engine: ComputeHash and AppendRecord. The only writer of hash records.
//   - Writer: single goroutine queue in front of the Engine; Submit blocks
//     until the append is done. Backed by the wal journal when configured.
//   - Verifier: VerifyOne and VerifyBulk, raising tamper_detected events.
//
// # Algorithms
//
// sha256 (default), sha3-256 and blake2b-256. The algorithm is stored with
// each hash record and verification always uses the stored one.
package hashchain
