// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/auditkeep/internal/logging"
)

// Errors
var (
	ErrJournalClosed = errors.New("journal is closed")
	ErrEntryNotFound = errors.New("journal entry not found")
)

// Entry is one pending chain append.
type Entry struct {
	// Seq orders entries. Replay walks entries in ascending Seq.
	Seq uint64 `json:"seq"`

	AuditLogID    string    `json:"audit_log_id"`
	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Stats contains journal statistics.
type Stats struct {
	PendingCount  int64
	TotalAppends  int64
	TotalRemoves  int64
	TotalFailures int64
}

// Journal persists chain appends in BadgerDB between the moment a record is
// stored and the moment its hash is written, so an interrupted append is
// replayed on the next start.
type Journal struct {
	db     *badger.DB
	seq    *badger.Sequence
	config Config

	totalAppends  atomic.Int64
	totalRemoves  atomic.Int64
	totalFailures atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Prefix keys
const (
	prefixPending = "pending:"
	keySequence   = "meta:seq"

	// Sequence numbers leased from BadgerDB per round trip.
	sequenceBandwidth = 128
)

// Open opens (or creates) the journal.
func Open(cfg Config) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal sequence: %w", err)
	}

	j := &Journal{
		db:     db,
		seq:    seq,
		config: cfg,
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("in_memory", cfg.InMemory).
		Msg("Chain journal opened")
	return j, nil
}

func pendingKey(seq uint64) []byte {
	// Zero padding keeps lexicographic key order equal to numeric order.
	return []byte(fmt.Sprintf("%s%020d", prefixPending, seq))
}

// Append records a pending chain append for auditLogID and returns its entry.
func (j *Journal) Append(ctx context.Context, auditLogID string) (*Entry, error) {
	start := time.Now()
	defer func() {
		journalAppendLatency.Observe(time.Since(start).Seconds())
	}()

	if auditLogID == "" {
		return nil, errors.New("audit log id cannot be empty")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrJournalClosed
	}

	n, err := j.seq.Next()
	if err != nil {
		journalWriteFailures.Inc()
		return nil, fmt.Errorf("next journal sequence: %w", err)
	}

	entry := &Entry{
		Seq:        n + 1,
		AuditLogID: auditLogID,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		journalWriteFailures.Inc()
		return nil, fmt.Errorf("marshal entry: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(entry.Seq), data)
	})
	if err != nil {
		journalWriteFailures.Inc()
		return nil, fmt.Errorf("write entry: %w", err)
	}

	j.totalAppends.Add(1)
	journalAppendsTotal.Inc()
	journalPendingEntries.Inc()

	logging.Ctx(ctx).Trace().
		Uint64("journal_seq", entry.Seq).
		Str("audit_log_id", auditLogID).
		Msg("Chain append journaled")

	return entry, nil
}

// Remove deletes the entry with the given sequence once its append is done.
func (j *Journal) Remove(ctx context.Context, seq uint64) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}

	key := pendingKey(seq)
	err := j.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("get entry: %w", err)
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}

	j.totalRemoves.Add(1)
	journalRemovesTotal.Inc()
	journalPendingEntries.Dec()
	return nil
}

// RecordFailure increments an entry's attempt count and stores the error.
func (j *Journal) RecordFailure(ctx context.Context, seq uint64, lastError string) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}

	key := pendingKey(seq)
	err := j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}

		var entry Entry
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
		if err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}

		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	j.totalFailures.Add(1)
	journalFailuresTotal.Inc()
	return nil
}

// Pending returns all pending entries in ascending sequence order.
func (j *Journal) Pending(ctx context.Context) ([]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrJournalClosed
	}

	var entries []*Entry
	prefix := []byte(prefixPending)

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				logging.Warn().
					Err(err).
					Str("key", string(it.Item().Key())).
					Msg("Skipping unreadable journal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}

	journalPendingEntries.Set(float64(len(entries)))
	return entries, nil
}

// Stats returns current journal statistics.
func (j *Journal) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return Stats{}
	}

	var pending int64
	prefix := []byte(prefixPending)
	_ = j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pending++
		}
		return nil
	})

	return Stats{
		PendingCount:  pending,
		TotalAppends:  j.totalAppends.Load(),
		TotalRemoves:  j.totalRemoves.Load(),
		TotalFailures: j.totalFailures.Load(),
	}
}

// RunGC triggers BadgerDB value log garbage collection until nothing is left
// to rewrite. In-memory journals have no value log and return immediately.
func (j *Journal) RunGC() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	if j.config.InMemory {
		return nil
	}

	journalGCRuns.Inc()
	for {
		err := j.db.RunValueLogGC(j.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close releases the sequence lease and closes BadgerDB, giving up after
// CloseTimeout.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	timeout := j.config.CloseTimeout
	j.mu.Unlock()

	if err := j.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release journal sequence")
	}

	done := make(chan error, 1)
	go func() {
		done <- j.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Chain journal closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

