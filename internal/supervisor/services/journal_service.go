// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package services

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/wal"
)

// DefaultJournalGCInterval is how often the journal value log is compacted.
const DefaultJournalGCInterval = 10 * time.Minute

// JournalCollector is satisfied by *wal.Journal.
type JournalCollector interface {
	RunGC() error
	Stats() wal.Stats
}

// JournalGCService periodically runs BadgerDB value log GC on the chain
// append journal. Once the journal is closed the service stops and is not
// restarted.
type JournalGCService struct {
	journal  JournalCollector
	interval time.Duration
	name     string
}

// NewJournalGCService creates the wrapper. A non-positive interval becomes
// DefaultJournalGCInterval.
func NewJournalGCService(journal JournalCollector, interval time.Duration) *JournalGCService {
	if interval <= 0 {
		interval = DefaultJournalGCInterval
	}
	return &JournalGCService{
		journal:  journal,
		interval: interval,
		name:     "journal-gc",
	}
}

// Serve implements suture.Service.
func (s *JournalGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := s.journal.RunGC()
			switch {
			case errors.Is(err, wal.ErrJournalClosed):
				logging.Info().Msg("Chain journal closed, stopping GC")
				return suture.ErrDoNotRestart
			case err != nil:
				logging.Warn().Err(err).Msg("Chain journal GC failed")
			default:
				stats := s.journal.Stats()
				logging.Debug().Int64("pending", stats.PendingCount).Msg("Chain journal GC complete")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *JournalGCService) String() string {
	return s.name
}
