// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package archival

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/breaker"
	"github.com/tomtom215/auditkeep/internal/config"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
	"github.com/tomtom215/auditkeep/internal/retention"
)

// DefaultBatchSize is the number of ids per delete call.
const DefaultBatchSize = 1000

// ErrJobInProgress is returned when a policy is already being executed.
var ErrJobInProgress = errors.New("archival job already running for policy")

// Store is the persistence the runner needs.
type Store interface {
	GetPolicy(ctx context.Context, id string) (*audit.RetentionPolicy, error)
	ListPolicies(ctx context.Context, filter audit.PolicyFilter) ([]audit.RetentionPolicy, error)
	audit.JobStore
	audit.RetentionStore
}

// Options tunes the runner.
type Options struct {
	// BatchSize is the number of ids per delete call.
	BatchSize int

	// DeleteRate caps delete batches per second. 0 = unlimited.
	DeleteRate float64

	// CompressionLevel is the gzip level for compressed archives.
	CompressionLevel int

	// Breaker guards store calls. A zero FailureThreshold disables it.
	Breaker config.BreakerConfig
}

// OptionsFrom maps the archival configuration section.
func OptionsFrom(cfg config.ArchivalConfig) Options {
	return Options{
		BatchSize:        cfg.BatchSize,
		DeleteRate:       cfg.DeleteRate,
		CompressionLevel: cfg.CompressionLevel,
		Breaker:          cfg.Breaker,
	}
}

// Runner executes retention policies: it exports the archive band of each
// applicable table and deletes rows past retention.
type Runner struct {
	store     Store
	breaker   *breaker.Breaker
	limiter   *rate.Limiter
	batchSize int
	level     int
	now       func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// NewRunner creates a runner.
func NewRunner(store Store, opts Options) *Runner {
	r := &Runner{
		store:     store,
		batchSize: opts.BatchSize,
		level:     opts.CompressionLevel,
		now:       time.Now,
		running:   make(map[string]struct{}),
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultBatchSize
	}
	if r.level < gzip.HuffmanOnly || r.level > gzip.BestCompression {
		r.level = gzip.DefaultCompression
	}
	if opts.DeleteRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.DeleteRate), 1)
	}
	if opts.Breaker.FailureThreshold > 0 {
		// Not-found and validation errors say nothing about store health.
		r.breaker = breaker.New("archival-store", opts.Breaker, audit.ErrNotFound, audit.ErrValidation)
	}
	return r
}

// Execute runs policyID once and returns the finished job. The job is
// created running and transitions exactly once to completed, failed or
// cancelled. Failures inside the run are recorded on the job; the returned
// error is only set when the job itself could not be created or saved.
// Work committed before a failure (files written, batches deleted) stays.
func (r *Runner) Execute(ctx context.Context, policyID, location string) (*audit.ArchivalJob, error) {
	policy, err := r.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", policyID, err)
	}

	if !r.acquire(policyID) {
		return nil, fmt.Errorf("%w: %s", ErrJobInProgress, policyID)
	}
	defer r.release(policyID)

	now := audit.NormalizeTime(r.now())
	job := &audit.ArchivalJob{
		ID:        uuid.New().String(),
		PolicyID:  policy.ID,
		Status:    audit.JobRunning,
		StartedAt: now,
	}
	if err := r.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create archival job: %w", err)
	}

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	ctx = logging.ContextWithJobID(ctx, job.ID)

	logging.Ctx(ctx).Info().
		Str("policy_id", policy.ID).
		Str("policy", policy.Name).
		Strs("tables", policy.ApplicableTables).
		Str("location", location).
		Msg("Archival job started")

	runErr := r.run(ctx, job, policy, location, now)
	r.finish(job, runErr)

	// The job must reach its terminal state even when ctx was cancelled.
	if err := r.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		return job, fmt.Errorf("save archival job %s: %w", job.ID, err)
	}

	duration := job.CompletedAt.Sub(job.StartedAt)
	metrics.RecordArchivalJob(string(job.Status), duration)

	event := logging.Ctx(ctx).Info()
	if job.Status != audit.JobCompleted {
		event = logging.Ctx(ctx).Error().Str("error", job.ErrorMessage)
	}
	event.
		Str("status", string(job.Status)).
		Int64("processed", job.RecordsProcessed).
		Int64("archived", job.RecordsArchived).
		Int64("deleted", job.RecordsDeleted).
		Dur("duration", duration).
		Msg("Archival job finished")

	return job, nil
}

func (r *Runner) acquire(policyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[policyID]; busy {
		return false
	}
	r.running[policyID] = struct{}{}
	return true
}

func (r *Runner) release(policyID string) {
	r.mu.Lock()
	delete(r.running, policyID)
	r.mu.Unlock()
}

// finish applies the single terminal transition.
func (r *Runner) finish(job *audit.ArchivalJob, err error) {
	completed := audit.NormalizeTime(r.now())
	if completed.Before(job.StartedAt) {
		completed = job.StartedAt
	}
	job.CompletedAt = &completed

	switch {
	case err == nil:
		job.Status = audit.JobCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		job.Status = audit.JobCancelled
		job.ErrorMessage = err.Error()
	default:
		job.Status = audit.JobFailed
		job.ErrorMessage = err.Error()
	}
}

func (r *Runner) run(ctx context.Context, job *audit.ArchivalJob, policy *audit.RetentionPolicy, location string, now time.Time) error {
	cut := retention.CutoffsAt(policy, now)

	for _, table := range policy.ApplicableTables {
		if err := ctx.Err(); err != nil {
			return err
		}

		band, err := r.fetch(ctx, table, cut.ArchiveBand())
		if err != nil {
			return fmt.Errorf("fetch archive band of %s: %w", table, err)
		}
		job.RecordsProcessed += int64(len(band))

		if len(band) > 0 {
			path, err := r.writeArchive(ctx, location, table, policy, band, now)
			if err != nil {
				return err
			}
			job.RecordsArchived += int64(len(band))
			job.ArchiveLocation = path
			metrics.ArchivalRecordsArchived.WithLabelValues(table).Add(float64(len(band)))
		}

		// Independent of the band: rows archived by an earlier run may
		// only now be past retention.
		expired, err := r.fetch(ctx, table, cut.Expired())
		if err != nil {
			return fmt.Errorf("fetch expired rows of %s: %w", table, err)
		}
		job.RecordsProcessed += int64(len(expired))

		deleted, err := r.deleteInBatches(ctx, table, rowIDs(expired))
		job.RecordsDeleted += deleted
		if err != nil {
			return fmt.Errorf("delete expired rows of %s: %w", table, err)
		}
	}
	return nil
}

func (r *Runner) fetch(ctx context.Context, table string, tr audit.TimeRange) ([]audit.Row, error) {
	return call(r, func() ([]audit.Row, error) {
		return r.store.FetchRows(ctx, table, tr)
	})
}

// deleteInBatches deletes ids sequentially in fixed-size batches. The count
// of rows deleted before a failure is returned with the error.
func (r *Runner) deleteInBatches(ctx context.Context, table string, ids []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += r.batchSize {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return deleted, err
			}
		} else if err := ctx.Err(); err != nil {
			return deleted, err
		}

		end := min(start+r.batchSize, len(ids))
		n, err := call(r, func() (int64, error) {
			return r.store.DeleteRows(ctx, table, ids[start:end])
		})
		if err != nil {
			return deleted, err
		}
		deleted += n

		metrics.ArchivalDeleteBatches.Inc()
		metrics.ArchivalRecordsDeleted.WithLabelValues(table).Add(float64(n))
		logging.Ctx(ctx).Debug().
			Str("table", table).
			Int("batch_size", end-start).
			Int64("deleted", n).
			Int64("total_deleted", deleted).
			Msg("Delete batch committed")
	}
	return deleted, nil
}

// call runs fn through the store breaker when one is configured.
func call[T any](r *Runner, fn func() (T, error)) (T, error) {
	if r.breaker == nil {
		return fn()
	}
	return breaker.Call(r.breaker, fn)
}

func rowIDs(rows []audit.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := row.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Job returns one archival job.
func (r *Runner) Job(ctx context.Context, id string) (*audit.ArchivalJob, error) {
	return r.store.GetJob(ctx, id)
}

// Jobs returns the job history, newest first. An empty policyID lists all
// policies; limit 0 means unbounded.
func (r *Runner) Jobs(ctx context.Context, policyID string, limit int) ([]audit.ArchivalJob, error) {
	if limit < 0 {
		return nil, audit.Validationf("limit must not be negative")
	}
	return r.store.ListJobs(ctx, audit.JobFilter{PolicyID: policyID, Limit: limit})
}
