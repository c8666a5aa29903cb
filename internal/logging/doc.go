// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

// Package logging provides centralized zerolog-based logging for Auditkeep.
//
// All packages log through the global zerolog logger configured here:
//
//   - JSON output for production, console output for development
//   - Context-aware logging with correlation and job id propagation
//   - An slog.Handler adapter for libraries that require slog (sutureslog)
//   - A FindingLogger that masks actor ids and redacts secret metadata
//   - An EventLogger for message bus publication
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Msg("Pipeline starting")
//	logging.Error().Err(err).Str("policy_id", id).Msg("Archival job failed")
//
// # Correlation
//
// Every scheduled verification, detection scan and archival run starts with
// a fresh correlation id:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Int64("tampered", n).Msg("Bulk verification finished")
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
package logging
