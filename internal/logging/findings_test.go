// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFindingLogger_LogFinding(t *testing.T) {
	var buf bytes.Buffer
	l := NewFindingLoggerWithLogger(zerolog.New(&buf))

	ids := make([]string, 25)
	for i := range ids {
		ids[i] = fmt.Sprintf("rec-%02d", i)
	}

	ctx := ContextWithCorrelationID(context.Background(), "corr0004")
	l.LogFinding(ctx, &Finding{
		ID:              "ev-1",
		Type:            "tamper_detected",
		Severity:        "high",
		Description:     "Detected 25 tampered audit records",
		AffectedRecords: ids,
		ActorID:         "user-12345678",
		Metadata: map[string]interface{}{
			"api_key": "sk-abcdefghijklmnop",
			"count":   25,
		},
	})

	output := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"component":"security"`,
		`"correlation_id":"corr0004"`,
		`"affected_count":25`,
		`"actor_id":"user...5678"`,
		`"meta.api_key":"sk-a...mnop"`,
		`"meta.count":25`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "rec-10") {
		t.Errorf("affected ids should be capped at %d, got: %s", maxLoggedRecordIDs, output)
	}
}

func TestFindingLogger_LowSeverityIsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewFindingLoggerWithLogger(zerolog.New(&buf))

	l.LogFinding(context.Background(), &Finding{ID: "ev-2", Type: "time_anomaly", Severity: "medium"})

	if !strings.Contains(buf.String(), `"level":"info"`) {
		t.Errorf("medium findings should log at info, got: %s", buf.String())
	}
}

func TestFindingLogger_LogResolved(t *testing.T) {
	tests := []struct {
		name            string
		ctx             context.Context
		alreadyResolved bool
		want            []string
	}{
		{
			name:            "repeat resolution",
			ctx:             context.Background(),
			alreadyResolved: true,
			want:            []string{`"event_id":"ev-3"`, `"already_resolved":true`, `"resolved_by":"***"`, `"level":"info"`},
		},
		{
			name:            "first resolution carries correlation id",
			ctx:             ContextWithCorrelationID(context.Background(), "corr-77"),
			alreadyResolved: false,
			want:            []string{`"event_id":"ev-3"`, `"already_resolved":false`, `"correlation_id":"corr-77"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewFindingLoggerWithLogger(zerolog.New(&buf))

			l.LogResolved(tt.ctx, "ev-3", "admin", tt.alreadyResolved)

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("resolution line missing %s: %s", want, output)
				}
			}
		})
	}
}

func TestSanitizers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"empty actor", SanitizeActorID(""), ""},
		{"short actor", SanitizeActorID("bob"), "***"},
		{"long actor", SanitizeActorID("user-12345678"), "user...5678"},
		{"short token", SanitizeToken("abc"), "***"},
		{"sensitive key", SanitizeValue("Password", "hunter2hunter2"), "hunt...ter2"},
		{"plain key", SanitizeValue("table", "audit_logs"), "audit_logs"},
		{"long value truncated", SanitizeValue("note", strings.Repeat("x", 250)), strings.Repeat("x", 200) + "..."},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLoggerWithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	ctx := ContextWithCorrelationID(context.Background(), "corr0005")
	l.LogEventPublished(ctx, "ev-1", "audit.security_events")
	l.LogPublishFailed(ctx, "ev-2", "audit.security_events", errors.New("nats: connection closed"))
	l.LogPublisherStarted("memory", "audit.security_events")

	output := buf.String()
	for _, want := range []string{
		`"message":"event published"`,
		`"message":"event publish failed"`,
		`"error":"nats: connection closed"`,
		`"backend":"memory"`,
		`"correlation_id":"corr0005"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}
