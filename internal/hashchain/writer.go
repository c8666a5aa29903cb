// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package hashchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
	"github.com/tomtom215/auditkeep/internal/wal"
)

// ErrWriterStopped is returned by Submit when the writer is shutting down.
var ErrWriterStopped = errors.New("chain writer stopped")

// Appender appends one record to the chain. Satisfied by *Engine.
type Appender interface {
	AppendRecord(ctx context.Context, auditLogID string) (*audit.HashRecord, error)
}

// Journal is the durable record of submitted appends. Satisfied by *wal.Journal.
type Journal interface {
	Append(ctx context.Context, auditLogID string) (*wal.Entry, error)
	Remove(ctx context.Context, seq uint64) error
	RecordFailure(ctx context.Context, seq uint64, lastError string) error
	Replay(ctx context.Context, h wal.Handler) (*wal.ReplayResult, error)
}

type appendResult struct {
	hash *audit.HashRecord
	err  error
}

type appendRequest struct {
	auditLogID string
	seq        uint64 // journal sequence, 0 when not journaled
	result     chan appendResult
}

// Writer is the single consumer of chain appends. Submit enqueues requests
// in call order and one goroutine, RunWithContext, applies them to the
// engine, so the chain grows in submission order.
type Writer struct {
	engine   Appender
	journal  Journal
	requests chan *appendRequest

	// submitMu keeps journal order and queue order identical.
	submitMu sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewWriter creates a writer. journal may be nil to run without durability.
func NewWriter(engine Appender, journal *wal.Journal, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 1
	}
	w := &Writer{
		engine:   engine,
		requests: make(chan *appendRequest, queueSize),
		done:     make(chan struct{}),
	}
	if journal != nil {
		w.journal = journal
	}
	return w
}

// Submit queues auditLogID for appending and waits for the result. If ctx
// ends first the append still happens; only the wait is abandoned.
func (w *Writer) Submit(ctx context.Context, auditLogID string) (*audit.HashRecord, error) {
	req := &appendRequest{
		auditLogID: auditLogID,
		result:     make(chan appendResult, 1),
	}

	if err := w.enqueue(ctx, req); err != nil {
		return nil, err
	}

	select {
	case res := <-req.result:
		return res.hash, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, ErrWriterStopped
	}
}

func (w *Writer) enqueue(ctx context.Context, req *appendRequest) error {
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	select {
	case <-w.done:
		return ErrWriterStopped
	default:
	}

	if w.journal != nil {
		entry, err := w.journal.Append(ctx, req.auditLogID)
		if err != nil {
			return fmt.Errorf("journal chain append: %w", err)
		}
		req.seq = entry.Seq
	}

	select {
	case w.requests <- req:
		metrics.ChainQueueDepth.Set(float64(len(w.requests)))
		return nil
	case <-ctx.Done():
		// Journaled but not queued: the next replay picks it up.
		return ctx.Err()
	case <-w.done:
		return ErrWriterStopped
	}
}

// RunWithContext replays journaled appends left over from a previous run,
// then processes submitted appends until ctx is cancelled. A failed replay
// returns an error so the supervisor restarts the writer and replays again.
func (w *Writer) RunWithContext(ctx context.Context) error {
	if w.journal != nil {
		if _, err := w.journal.Replay(ctx, wal.HandlerFunc(w.replayEntry)); err != nil {
			return fmt.Errorf("replay chain journal: %w", err)
		}
	}

	logging.Info().Int("queue_capacity", cap(w.requests)).Msg("Chain writer started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Int("queued", len(w.requests)).Msg("Chain writer stopping")
			return ctx.Err()
		case req := <-w.requests:
			metrics.ChainQueueDepth.Set(float64(len(w.requests)))
			w.process(ctx, req)
		}
	}
}

// Stop makes pending and future Submit calls return ErrWriterStopped.
// Queued requests that were journaled are replayed on the next start.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Writer) replayEntry(ctx context.Context, entry *wal.Entry) error {
	_, err := w.engine.AppendRecord(ctx, entry.AuditLogID)
	if errors.Is(err, audit.ErrNotFound) {
		// The record was never stored or has been archived since.
		logging.Warn().
			Str("audit_log_id", entry.AuditLogID).
			Uint64("journal_seq", entry.Seq).
			Msg("Dropping journaled append for missing audit record")
		return nil
	}
	return err
}

func (w *Writer) process(ctx context.Context, req *appendRequest) {
	hash, err := w.engine.AppendRecord(ctx, req.auditLogID)
	req.result <- appendResult{hash: hash, err: err}

	if w.journal == nil || req.seq == 0 {
		return
	}

	if err != nil && !errors.Is(err, audit.ErrNotFound) {
		logging.Error().Err(err).
			Str("audit_log_id", req.auditLogID).
			Uint64("journal_seq", req.seq).
			Msg("Chain append failed, left in journal for replay")
		if ferr := w.journal.RecordFailure(ctx, req.seq, err.Error()); ferr != nil {
			logging.Warn().Err(ferr).Uint64("journal_seq", req.seq).Msg("Failed to record journal attempt")
		}
		return
	}

	if rerr := w.journal.Remove(ctx, req.seq); rerr != nil && !errors.Is(rerr, wal.ErrEntryNotFound) {
		logging.Warn().Err(rerr).Uint64("journal_seq", req.seq).Msg("Failed to remove journal entry")
	}
}
