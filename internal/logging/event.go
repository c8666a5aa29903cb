// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// EventLogger provides logging for message bus publication.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates a logger configured for bus publication.
func NewEventLogger() *EventLogger {
	return &EventLogger{logger: WithComponent("eventbus")}
}

// NewEventLoggerWithLogger creates an event logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEventLoggerWithLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{logger: logger.With().Str("component", "eventbus").Logger()}
}

func (e *EventLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := e.logger.With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	return logCtx.Logger()
}

// LogEventPublished logs when an event is published to the bus.
func (e *EventLogger) LogEventPublished(ctx context.Context, eventID, topic string) {
	logger := e.loggerWithContext(ctx)
	logger.Debug().Str("event_id", eventID).Str("topic", topic).Msg("event published")
}

// LogPublishFailed logs a publication that did not reach the bus.
func (e *EventLogger) LogPublishFailed(ctx context.Context, eventID, topic string, err error) {
	logger := e.loggerWithContext(ctx)
	logger.Warn().Str("event_id", eventID).Str("topic", topic).Err(err).Msg("event publish failed")
}

// LogPublisherStarted logs the bus backend in use.
func (e *EventLogger) LogPublisherStarted(backend, topic string) {
	e.logger.Info().Str("backend", backend).Str("topic", topic).Msg("publisher started")
}

// LogPublisherStopped logs publisher shutdown.
func (e *EventLogger) LogPublisherStopped() {
	e.logger.Info().Msg("publisher stopped")
}
