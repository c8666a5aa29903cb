// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package archival

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
)

// ScheduleResult collects the outcome of one pass over the active policies.
type ScheduleResult struct {
	Jobs []*audit.ArchivalJob

	// Errors holds, per policy id, runs that produced no job at all.
	Errors map[string]error
}

// Failed counts jobs that did not complete plus runs that produced no job.
func (s *ScheduleResult) Failed() int {
	n := len(s.Errors)
	for _, job := range s.Jobs {
		if job.Status != audit.JobCompleted {
			n++
		}
	}
	return n
}

// Schedule executes every active policy. One policy failing does not stop
// the others.
func (r *Runner) Schedule(ctx context.Context, location string) (*ScheduleResult, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)

	policies, err := r.store.ListPolicies(ctx, audit.PolicyFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}

	result := &ScheduleResult{Errors: make(map[string]error)}
	for i := range policies {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		policy := &policies[i]
		job, err := r.Execute(ctx, policy.ID, location)
		if job != nil {
			result.Jobs = append(result.Jobs, job)
		}
		if err != nil {
			result.Errors[policy.ID] = err
			logging.Ctx(ctx).Error().Err(err).
				Str("policy_id", policy.ID).
				Str("policy", policy.Name).
				Msg("Scheduled archival failed")
		}
	}

	logging.Ctx(ctx).Info().
		Int("policies", len(policies)).
		Int("failed", result.Failed()).
		Msg("Scheduled archival pass finished")

	return result, nil
}

// Scheduler runs Schedule on a cron expression. It implements the
// RunWithContext shape the supervisor services wrap.
type Scheduler struct {
	runner   *Runner
	location string
	spec     string
	schedule cron.Schedule
	timeout  time.Duration
}

// NewScheduler parses spec as a standard 5-field cron expression or a
// descriptor such as @daily. timeout bounds one pass; 0 means none.
func NewScheduler(runner *Runner, location, spec string, timeout time.Duration) (*Scheduler, error) {
	if spec == "" {
		return nil, audit.Validationf("archival schedule is empty")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, audit.Validationf("archival schedule %q: %v", spec, err)
	}
	return &Scheduler{
		runner:   runner,
		location: location,
		spec:     spec,
		schedule: schedule,
		timeout:  timeout,
	}, nil
}

// Next returns the next activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// RunWithContext blocks until ctx is cancelled, running a pass on every
// activation. Overlapping activations are skipped.
func (s *Scheduler) RunWithContext(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))

	c.Start()
	logging.Info().
		Str("schedule", s.spec).
		Str("location", s.location).
		Time("next_run", s.Next(time.Now())).
		Msg("Archival scheduler started")

	<-ctx.Done()

	// Wait for a pass in flight; it observes the same cancelled ctx.
	<-c.Stop().Done()
	logging.Info().Msg("Archival scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.runner.Schedule(ctx, s.location)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Archival pass failed")
		return
	}
	if result != nil {
		logging.Info().
			Int("jobs", len(result.Jobs)).
			Int("failed", result.Failed()).
			Dur("duration", time.Since(start)).
			Msg("Archival pass completed")
	}
}

// cronLogger routes cron's logr-style output to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Fields(keysAndValues).Str("component", "cron").Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Fields(keysAndValues).Str("component", "cron").Msg(msg)
}
