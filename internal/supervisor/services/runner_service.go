// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package services

import (
	"context"
)

// ContextRunner is any component with a blocking run loop that returns
// when its context is cancelled.
//
// Satisfied by *detection.Engine, *archival.Scheduler, *eventbus.Intake and
// *hashchain.Writer.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService wraps a ContextRunner as a supervised service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewDetectionService supervises the anomaly detection engine.
//
//	engine := detection.NewDefaultEngine(store, events, detection.ConfigFrom(cfg.Detection), cfg.Detection.Interval)
//	tree.AddIntegrityService(services.NewDetectionService(engine))
func NewDetectionService(engine ContextRunner) *RunnerService {
	return &RunnerService{runner: engine, name: "anomaly-detection"}
}

// NewArchivalSchedulerService supervises the cron-driven archival scheduler.
func NewArchivalSchedulerService(scheduler ContextRunner) *RunnerService {
	return &RunnerService{runner: scheduler, name: "archival-scheduler"}
}

// NewRecordIntakeService supervises the consumer that feeds audit records
// from the bus into the recorder.
func NewRecordIntakeService(intake ContextRunner) *RunnerService {
	return &RunnerService{runner: intake, name: "record-intake"}
}

// Serve implements suture.Service. It returns ctx.Err() on normal shutdown.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (s *RunnerService) String() string {
	return s.name
}

// ChainWriter is the lifecycle of *hashchain.Writer.
type ChainWriter interface {
	ContextRunner
	Stop()
}

// ChainWriterService supervises the single hash chain writer.
//
// A crashed writer is restarted and replays its journal. The writer is only
// stopped for good when the tree itself shuts down, so Submit callers see
// ErrWriterStopped instead of blocking on a queue nobody drains.
type ChainWriterService struct {
	writer ChainWriter
	name   string
}

// NewChainWriterService creates the wrapper.
func NewChainWriterService(writer ChainWriter) *ChainWriterService {
	return &ChainWriterService{writer: writer, name: "chain-writer"}
}

// Serve implements suture.Service.
func (s *ChainWriterService) Serve(ctx context.Context) error {
	err := s.writer.RunWithContext(ctx)
	if ctx.Err() != nil {
		s.writer.Stop()
	}
	return err
}

// String implements fmt.Stringer.
func (s *ChainWriterService) String() string {
	return s.name
}
