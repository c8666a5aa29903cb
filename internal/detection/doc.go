// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package detection scans the audit trail for suspicious patterns and
// raises security events.
//
// Detection Architecture:
//
//	audit_logs -> Engine.Scan -> Detector.Check -> SecurityEvent -> secevent.Manager
//	                                                                     |
//	                                                                     v
//	                                                          audit_security_events + bus
//
// Supported Checks:
//   - Bulk Modification: one actor performing more than BulkThreshold
//     changes of one action inside the window (medium, high above
//     BulkHighThreshold)
//   - Time Anomaly: records timestamped more than FutureSkew ahead of now,
//     reported as a single medium event
//   - Access Pattern: more than AccessThreshold changes from one actor and
//     address inside the window (unauthorized_access, medium)
//
// Checks are independent. A failing check is logged and reported in the
// ScanResult and never stops the others.
//
// Thresholds come from config.DetectionConfig; IgnoredActors removes
// service accounts from the bulk and access checks.
package detection
