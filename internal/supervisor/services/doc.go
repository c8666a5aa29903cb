// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package services provides suture.Service wrappers for Auditkeep components.

Each wrapper translates a component's lifecycle (RunWithContext, a ticker,
ListenAndServe) into suture's Serve(ctx) error and names itself through
fmt.Stringer for the supervisor's logs.

# Available Services

  - ChainWriterService: the single hash chain writer. Stopped for good only
    on shutdown; a crash restarts it and replays the journal.
  - JournalGCService: BadgerDB value log GC of the chain journal.
  - VerificationService: bulk verification every VERIFICATION_INTERVAL.
  - RunnerService: detection engine, archival scheduler and record intake.
  - HTTPServerService: ops endpoints with graceful shutdown.

# Return Values

Serve returns ctx.Err() on shutdown. A returned error makes the supervisor
restart the service; suture.ErrDoNotRestart retires it.
*/
package services
