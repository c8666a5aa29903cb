// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package retention validates retention policies and evaluates them.
//
// A policy defines two cutoffs relative to now:
//
//	archiveCutoff = now - archivePeriodDays
//	deleteCutoff  = now - retentionPeriodDays
//
// Rows timestamped in [deleteCutoff, archiveCutoff) are in the archive band
// and due for export; rows older than deleteCutoff are due for deletion.
// Policies whose archive period exceeds the retention period are rejected
// on create and update.
//
// Evaluation only counts. The archival package acts on the same cutoffs.
package retention
