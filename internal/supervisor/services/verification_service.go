// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/auditkeep/internal/hashchain"
	"github.com/tomtom215/auditkeep/internal/logging"
)

// BulkVerifier is satisfied by *hashchain.Verifier.
type BulkVerifier interface {
	VerifyBulk(ctx context.Context, limit int) (*hashchain.IntegrityReport, error)
}

// VerificationService runs bulk chain verification on a fixed interval.
//
// A failed run is logged and retried on the next tick; it never restarts the
// service. Each run gets its own correlation id from the verifier.
type VerificationService struct {
	verifier BulkVerifier
	interval time.Duration
	limit    int
	name     string
}

// NewVerificationService creates the wrapper. limit bounds the records
// checked per run.
func NewVerificationService(verifier BulkVerifier, interval time.Duration, limit int) *VerificationService {
	return &VerificationService{
		verifier: verifier,
		interval: interval,
		limit:    limit,
		name:     "chain-verification",
	}
}

// Serve implements suture.Service.
func (s *VerificationService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("verification interval must be positive, got %s", s.interval)
	}

	logging.Info().Dur("interval", s.interval).Int("limit", s.limit).Msg("Scheduled verification started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Scheduled verification stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *VerificationService) runOnce(ctx context.Context) {
	report, err := s.verifier.VerifyBulk(ctx, s.limit)
	if err != nil {
		if ctx.Err() == nil {
			logging.Error().Err(err).Msg("Scheduled verification failed")
		}
		return
	}
	if report.Tampered > 0 {
		logging.Warn().
			Int64("tampered", report.Tampered).
			Str("security_event_id", report.SecurityEventID).
			Msg("Scheduled verification found tampered records")
	}
}

// String implements fmt.Stringer.
func (s *VerificationService) String() string {
	return s.name
}
