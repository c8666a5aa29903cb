// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/validation"
)

// ChainAppender links a stored audit record into the hash chain.
// hashchain.Writer implements it.
type ChainAppender interface {
	Submit(ctx context.Context, auditLogID string) (*HashRecord, error)
}

// Recorder is the entry point the application's CRUD layer uses to write
// audit records. Records are chained in the order they are stored.
type Recorder struct {
	// mu spans timestamping, insert and chain append so concurrent callers
	// cannot reach the chain in a different order than the store.
	mu    sync.Mutex
	store RecordStore
	chain ChainAppender
	now   func() time.Time
}

// NewRecorder creates a recorder. chain may be nil, in which case records
// are stored without being chained (used by bulk imports that chain later).
func NewRecorder(store RecordStore, chain ChainAppender) *Recorder {
	return &Recorder{
		store: store,
		chain: chain,
		now:   time.Now,
	}
}

// Record validates, stores and chains rec. ID and ChangedAt are filled in
// when empty. The returned HashRecord is nil when no chain appender is set.
func (r *Recorder) Record(ctx context.Context, rec *Record) (*HashRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ChangedAt.IsZero() {
		rec.ChangedAt = r.now()
	}
	rec.ChangedAt = NormalizeTime(rec.ChangedAt)

	if verr := validation.ValidateStruct(rec); verr != nil {
		return nil, Validationf("audit record: %v", verr)
	}

	if err := r.store.InsertRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("store audit record %s: %w", rec.ID, err)
	}

	if r.chain == nil {
		return nil, nil
	}

	hash, err := r.chain.Submit(ctx, rec.ID)
	if err != nil {
		// The record is stored; the journal replays the append if the
		// writer got that far.
		logging.Ctx(ctx).Error().Err(err).
			Str("audit_log_id", rec.ID).
			Str("table_name", rec.TableName).
			Msg("Failed to chain audit record")
		return nil, fmt.Errorf("chain audit record %s: %w", rec.ID, err)
	}

	logging.Ctx(ctx).Debug().
		Str("audit_log_id", rec.ID).
		Int64("sequence", hash.Sequence).
		Msg("Audit record chained")

	return hash, nil
}
