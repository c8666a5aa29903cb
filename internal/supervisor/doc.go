// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

/*
Package supervisor provides process supervision for Auditkeep using suture v4.

# Overview

Every long-running component runs as a supervised service, organized into
three layers for failure isolation:

	RootSupervisor ("auditkeep")
	├── DataSupervisor ("data-layer")
	│   ├── ChainWriterService
	│   ├── JournalGCService (if CHAIN_JOURNAL_ENABLED)
	│   └── RecordIntakeService (if EVENTS_RECORDS_TOPIC is set)
	├── IntegritySupervisor ("integrity-layer")
	│   ├── VerificationService (if VERIFICATION_ENABLED)
	│   ├── DetectionService (if DETECTION_ENABLED)
	│   └── ArchivalSchedulerService (if ARCHIVAL_SCHEDULE is set)
	└── OpsSupervisor ("ops-layer")
	    └── HTTPServerService

A failed verification or detection run is restarted inside the integrity
layer without touching the chain writer. The chain writer replays its
journal on every restart, so a crash never loses an acknowledged append.

# Usage

	tree, err := supervisor.NewSupervisorTree(
	    logging.NewSlogLoggerWithComponent("supervisor"),
	    supervisor.TreeConfigFrom(cfg.Supervisor),
	)
	tree.AddDataService(services.NewChainWriterService(writer))
	tree.AddOpsService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}

# Configuration

TreeConfig controls restart behavior. Zero values fall back to suture's
defaults: 5 failures, 30s decay, 15s backoff and a 10s shutdown timeout.

# What Is NOT Supervised

DuckDB is an embedded library, not a service. Its connection is opened
before the tree starts and closed after the tree returns.

If services do not stop within the timeout, UnstoppedServiceReport lists
them.
*/
package supervisor
