// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package wal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/auditkeep/internal/logging"
)

// Handler applies one journaled append. Returning nil removes the entry.
type Handler interface {
	HandleEntry(ctx context.Context, entry *Entry) error
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, entry *Entry) error

// HandleEntry implements Handler.
func (f HandlerFunc) HandleEntry(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// ReplayResult contains the results of a replay.
type ReplayResult struct {
	TotalPending int
	Replayed     int
	Duration     time.Duration
}

// Replay hands every pending entry to h in sequence order. Chain order must
// be preserved, so replay stops at the first failing entry and returns its
// error; the entry stays pending with its attempt count bumped and is retried
// by the next Replay.
func (j *Journal) Replay(ctx context.Context, h Handler) (*ReplayResult, error) {
	if h == nil {
		return nil, errors.New("handler cannot be nil")
	}

	start := time.Now()
	result := &ReplayResult{}

	entries, err := j.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("get pending entries: %w", err)
	}

	result.TotalPending = len(entries)
	if result.TotalPending == 0 {
		logging.Debug().Msg("Chain journal replay: no pending entries")
		result.Duration = time.Since(start)
		return result, nil
	}

	logging.Info().Int("pending_entries", result.TotalPending).Msg("Chain journal replay found pending entries")
	journalReplayedEntries.Add(float64(result.TotalPending))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		if err := h.HandleEntry(ctx, entry); err != nil {
			logging.Error().Err(err).
				Uint64("journal_seq", entry.Seq).
				Str("audit_log_id", entry.AuditLogID).
				Int("attempts", entry.Attempts+1).
				Msg("Chain journal replay: entry failed")
			if ferr := j.RecordFailure(ctx, entry.Seq, err.Error()); ferr != nil && !errors.Is(ferr, ErrEntryNotFound) {
				logging.Warn().Err(ferr).Uint64("journal_seq", entry.Seq).Msg("Failed to record journal attempt")
			}
			result.Duration = time.Since(start)
			return result, fmt.Errorf("replay entry %d (%s): %w", entry.Seq, entry.AuditLogID, err)
		}

		if err := j.Remove(ctx, entry.Seq); err != nil && !errors.Is(err, ErrEntryNotFound) {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("remove replayed entry %d: %w", entry.Seq, err)
		}
		result.Replayed++
	}

	result.Duration = time.Since(start)
	logging.Info().
		Int("replayed", result.Replayed).
		Dur("duration", result.Duration).
		Msg("Chain journal replay complete")

	return result, nil
}
