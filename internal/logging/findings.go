// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package logging

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// maxLoggedRecordIDs bounds how many affected ids a single line carries.
const maxLoggedRecordIDs = 10

// Finding is the log-facing view of a security finding.
type Finding struct {
	ID              string
	Type            string
	Severity        string
	Description     string
	AffectedRecords []string
	ActorID         string
	IPAddress       string
	Metadata        map[string]interface{}
}

// FindingLogger writes security findings and their resolution to the log
// stream. Actor identifiers are masked and secret-looking metadata values
// are redacted before they are written.
type FindingLogger struct {
	logger zerolog.Logger
}

// NewFindingLogger creates a finding logger on the global logger.
func NewFindingLogger() *FindingLogger {
	return &FindingLogger{logger: WithComponent("security")}
}

// NewFindingLoggerWithLogger creates a finding logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewFindingLoggerWithLogger(logger zerolog.Logger) *FindingLogger {
	return &FindingLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogFinding logs a newly raised finding. High and critical findings are
// logged at warn level.
func (l *FindingLogger) LogFinding(ctx context.Context, f *Finding) {
	logger := l.withContext(ctx)

	e := logger.Info()
	if f.Severity == "high" || f.Severity == "critical" {
		e = logger.Warn()
	}

	e = e.Str("event_id", f.ID).
		Str("event_type", f.Type).
		Str("severity", f.Severity).
		Str("description", truncateString(f.Description, 200)).
		Int("affected_count", len(f.AffectedRecords))

	if len(f.AffectedRecords) > 0 {
		ids := f.AffectedRecords
		if len(ids) > maxLoggedRecordIDs {
			ids = ids[:maxLoggedRecordIDs]
		}
		e = e.Strs("affected_records", ids)
	}
	if f.ActorID != "" {
		e = e.Str("actor_id", SanitizeActorID(f.ActorID))
	}
	if f.IPAddress != "" {
		e = e.Str("ip", f.IPAddress)
	}
	for k, v := range f.Metadata {
		if s, ok := v.(string); ok {
			e = e.Str("meta."+k, SanitizeValue(k, s))
			continue
		}
		e = e.Interface("meta."+k, v)
	}

	e.Msg("Security finding raised")
}

// LogResolved logs the resolution of a finding. alreadyResolved marks an
// idempotent repeat.
func (l *FindingLogger) LogResolved(ctx context.Context, eventID, resolvedBy string, alreadyResolved bool) {
	logger := l.withContext(ctx)
	logger.Info().
		Str("event_id", eventID).
		Str("resolved_by", SanitizeActorID(resolvedBy)).
		Bool("already_resolved", alreadyResolved).
		Msg("Security finding resolved")
}

func (l *FindingLogger) withContext(ctx context.Context) zerolog.Logger {
	logCtx := l.logger.With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	return logCtx.Logger()
}

// SanitizeActorID masks an actor identifier, keeping the first and last
// four characters.
// Example: "user-12345678" -> "user...5678"
func SanitizeActorID(actorID string) string {
	if actorID == "" {
		return ""
	}
	if len(actorID) <= 8 {
		return "***"
	}
	return actorID[:4] + "..." + actorID[len(actorID)-4:]
}

// SanitizeToken masks a secret, showing only first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// sensitiveKeys are metadata keys whose values are never logged verbatim.
var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"cookie":        true,
	"session":       true,
	"session_id":    true,
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	return truncateString(value, 200)
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
