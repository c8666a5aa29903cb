// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package hashchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// ChainStore is the subset of audit.Store the chain needs.
type ChainStore interface {
	GetRecord(ctx context.Context, id string) (*audit.Record, error)
	InsertHash(ctx context.Context, h *audit.HashRecord) error
	GetHashByRecordID(ctx context.Context, auditLogID string) (*audit.HashRecord, error)
	LatestHash(ctx context.Context) (*audit.HashRecord, error)
	HashValueExists(ctx context.Context, hashValue string) (bool, error)
}

// ComputeHash returns the hex SHA-256 digest of rec chained to previousHash.
// A nil previousHash marks the genesis entry.
func ComputeHash(rec *audit.Record, previousHash *string) (string, error) {
	return ComputeHashWith(DefaultAlgorithm, rec, previousHash)
}

// ComputeHashWith is ComputeHash with an explicit algorithm. The digest
// input is the canonical JSON of rec followed by the previous hash.
func ComputeHashWith(algorithm string, rec *audit.Record, previousHash *string) (string, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}
	canonical, err := CanonicalJSON(rec)
	if err != nil {
		return "", err
	}
	h.Write(canonical)
	if previousHash != nil {
		h.Write([]byte(*previousHash))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Engine appends audit records to the hash chain. It is the only writer of
// hash records. Appends are serialized by an internal mutex; ordering across
// callers is the job of Writer.
type Engine struct {
	store     ChainStore
	algorithm string
	now       func() time.Time

	mu sync.Mutex
}

// NewEngine creates an engine hashing new entries with algorithm.
func NewEngine(store ChainStore, algorithm string) (*Engine, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if !ValidAlgorithm(algorithm) {
		return nil, audit.Validationf("unsupported hash algorithm %q", algorithm)
	}
	return &Engine{
		store:     store,
		algorithm: algorithm,
		now:       time.Now,
	}, nil
}

// Algorithm returns the algorithm used for new entries.
func (e *Engine) Algorithm() string {
	return e.algorithm
}

// AppendRecord links the stored record auditLogID to the chain head.
// It returns ErrNotFound when the record does not exist. A record that is
// already chained returns its existing hash record and writes nothing.
func (e *Engine) AppendRecord(ctx context.Context, auditLogID string) (*audit.HashRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	rec, err := e.store.GetRecord(ctx, auditLogID)
	if err != nil {
		metrics.RecordChainAppend("error", 0)
		return nil, fmt.Errorf("load audit record: %w", err)
	}

	existing, err := e.store.GetHashByRecordID(ctx, auditLogID)
	if err == nil {
		metrics.RecordChainAppend("duplicate", 0)
		logging.Ctx(ctx).Debug().
			Str("audit_log_id", auditLogID).
			Int64("sequence", existing.Sequence).
			Msg("Audit record already chained")
		return existing, nil
	}
	if !errors.Is(err, audit.ErrNotFound) {
		metrics.RecordChainAppend("error", 0)
		return nil, fmt.Errorf("check existing hash: %w", err)
	}

	var previous *string
	var sequence int64 = 1
	head, err := e.store.LatestHash(ctx)
	switch {
	case err == nil:
		prev := head.HashValue
		previous = &prev
		sequence = head.Sequence + 1
	case errors.Is(err, audit.ErrNotFound):
		// genesis
	default:
		metrics.RecordChainAppend("error", 0)
		return nil, fmt.Errorf("load chain head: %w", err)
	}

	value, err := ComputeHashWith(e.algorithm, rec, previous)
	if err != nil {
		metrics.RecordChainAppend("error", 0)
		return nil, err
	}

	hr := &audit.HashRecord{
		ID:            uuid.New().String(),
		AuditLogID:    auditLogID,
		HashValue:     value,
		HashAlgorithm: e.algorithm,
		PreviousHash:  previous,
		Sequence:      sequence,
		CreatedAt:     audit.NormalizeTime(e.now()),
		Verified:      true,
	}
	if err := e.store.InsertHash(ctx, hr); err != nil {
		metrics.RecordChainAppend("error", 0)
		return nil, fmt.Errorf("store hash record: %w", err)
	}

	metrics.RecordChainAppend("appended", time.Since(start))
	metrics.ChainHeadSequence.Set(float64(sequence))
	return hr, nil
}
