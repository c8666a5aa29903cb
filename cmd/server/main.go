// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/auditkeep/internal/api"
	"github.com/tomtom215/auditkeep/internal/archival"
	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/config"
	"github.com/tomtom215/auditkeep/internal/database"
	"github.com/tomtom215/auditkeep/internal/detection"
	"github.com/tomtom215/auditkeep/internal/eventbus"
	"github.com/tomtom215/auditkeep/internal/hashchain"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/retention"
	"github.com/tomtom215/auditkeep/internal/secevent"
	"github.com/tomtom215/auditkeep/internal/supervisor"
	"github.com/tomtom215/auditkeep/internal/supervisor/services"
	"github.com/tomtom215/auditkeep/internal/wal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Auditkeep stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires the components, serves the supervisor tree until SIGINT or
// SIGTERM and releases resources in reverse order.
//
//nolint:gocyclo // sequential setup steps
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("algorithm", cfg.Chain.Algorithm).
		Bool("journal_enabled", cfg.Chain.Journal.Enabled).
		Str("events_backend", cfg.Events.Backend).
		Msg("Starting Auditkeep")

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	store := audit.NewDuckDBStore(db.Conn())
	if err := store.CreateTables(ctx); err != nil {
		return err
	}
	logging.Info().Msg("Database initialized successfully")

	var journal *wal.Journal
	if cfg.Chain.Journal.Enabled {
		journal, err = wal.Open(wal.ConfigFrom(cfg.Chain.Journal))
		if err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing chain journal")
			}
		}()
		logging.Info().Str("path", cfg.Chain.Journal.Path).Msg("Chain journal opened")
	} else {
		logging.Warn().Msg("Chain journal disabled (CHAIN_JOURNAL_ENABLED=false). Queued appends are lost on crash.")
	}

	bus, err := eventbus.New(cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	events := secevent.NewManager(store, bus)

	engine, err := hashchain.NewEngine(store, cfg.Chain.Algorithm)
	if err != nil {
		return err
	}
	writer := hashchain.NewWriter(engine, journal, cfg.Chain.QueueSize)
	verifier := hashchain.NewVerifier(store, events)
	recorder := audit.NewRecorder(store, writer)

	logRetentionBacklog(ctx, retention.NewEngine(store))

	tree, err := supervisor.NewSupervisorTree(
		logging.NewSlogLoggerWithComponent("supervisor"),
		supervisor.TreeConfigFrom(cfg.Supervisor),
	)
	if err != nil {
		return err
	}

	tree.AddDataService(services.NewChainWriterService(writer))
	if journal != nil {
		tree.AddDataService(services.NewJournalGCService(journal, services.DefaultJournalGCInterval))
	}

	if cfg.Events.RecordsTopic != "" {
		source, err := bus.IntakeSubscriber(cfg.Events.NATSURL)
		if err != nil {
			return err
		}
		intake := eventbus.NewIntake(source, cfg.Events.RecordsTopic, recorder)
		tree.AddDataService(services.NewRecordIntakeService(intake))
		logging.Info().Str("topic", intake.Topic()).Msg("Record intake enabled")
	} else {
		logging.Info().Msg("Record intake disabled (EVENTS_RECORDS_TOPIC is empty)")
	}

	if cfg.Verification.Enabled {
		tree.AddIntegrityService(services.NewVerificationService(verifier, cfg.Verification.Interval, cfg.Verification.BulkLimit))
	} else {
		logging.Info().Msg("Scheduled verification disabled (VERIFICATION_ENABLED=false)")
	}

	if cfg.Detection.Enabled {
		detector := detection.NewDefaultEngine(store, events, detection.ConfigFrom(cfg.Detection), cfg.Detection.Interval)
		tree.AddIntegrityService(services.NewDetectionService(detector))
	} else {
		logging.Info().Msg("Anomaly detection disabled (DETECTION_ENABLED=false)")
	}

	if cfg.Archival.Schedule != "" {
		runner := archival.NewRunner(store, archival.OptionsFrom(cfg.Archival))
		scheduler, err := archival.NewScheduler(runner, cfg.Archival.Location, cfg.Archival.Schedule, 0)
		if err != nil {
			return err
		}
		tree.AddIntegrityService(services.NewArchivalSchedulerService(scheduler))
		logging.Info().
			Str("schedule", cfg.Archival.Schedule).
			Time("next_run", scheduler.Next(time.Now())).
			Msg("Archival scheduled")
	} else {
		logging.Info().Msg("Scheduled archival disabled (ARCHIVAL_SCHEDULE is empty)")
	}

	tree.AddOpsService(services.NewHTTPServerService(api.NewServer(store, cfg.Server), cfg.Supervisor.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
		serveErr = err
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	return serveErr
}

// logRetentionBacklog reports how many rows each active policy would
// archive and delete right now. Failures are logged and never block startup.
func logRetentionBacklog(ctx context.Context, policies *retention.Engine) {
	evaluations, err := policies.EvaluateAll(ctx, time.Now())
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to evaluate retention policies")
		return
	}
	for _, ev := range evaluations {
		for _, tbl := range ev.Tables {
			logging.Info().
				Str("policy", ev.PolicyName).
				Str("table", tbl.Table).
				Int64("archive_eligible", tbl.ArchiveEligible).
				Int64("delete_eligible", tbl.DeleteEligible).
				Msg("Retention backlog")
		}
	}
}
