// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package compliance produces retention and integrity compliance reports.
//
// A report covers a caller-chosen window and contains the complete audit
// trail of that window, so callers bound the date range rather than the
// record count. Each active retention policy is checked for rows still
// present past its retention cutoff; any such row makes the policy, and the
// report, non-compliant with one issue per offending table.
//
// The data integrity block combines hash coverage counts with a bounded
// hashchain.Verifier pass (DefaultIntegrityLimit records). A verification
// failure is recorded in the block instead of failing the report.
package compliance
