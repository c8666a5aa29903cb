// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// MetadataTableName carries the audited table on record messages.
const MetadataTableName = "table_name"

// DefaultRetryDelay is the pause after a nacked record before the next
// delivery is read.
const DefaultRetryDelay = time.Second

// DefaultMaxAttempts bounds deliveries of one message before it is dropped.
const DefaultMaxAttempts = 5

// Intake outcomes, also used as metric labels.
const (
	intakeRecorded = "recorded"
	intakeRejected = "rejected"
	intakeRetried  = "retried"
)

// RecordSink stores and chains one audit record. Satisfied by
// *audit.Recorder.
type RecordSink interface {
	Record(ctx context.Context, rec *audit.Record) (*audit.HashRecord, error)
}

// IntakeStats holds runtime counters of an Intake.
type IntakeStats struct {
	Received int64
	Recorded int64
	Rejected int64
	Retried  int64
}

// Intake consumes audit records from a watermill topic and hands them to a
// RecordSink one at a time, so records reach the chain in delivery order.
//
// Malformed payloads and records that fail validation are acked and
// dropped. Any other sink error nacks the message for redelivery until
// maxAttempts deliveries of the same message have failed.
type Intake struct {
	source      message.Subscriber
	topic       string
	sink        RecordSink
	retryDelay  time.Duration
	maxAttempts int

	// Only touched by the RunWithContext goroutine.
	failingUUID string
	attempts    int

	received atomic.Int64
	recorded atomic.Int64
	rejected atomic.Int64
	retried  atomic.Int64
}

// NewIntake creates an intake reading topic from source.
func NewIntake(source message.Subscriber, topic string, sink RecordSink) *Intake {
	return &Intake{
		source:      source,
		topic:       topic,
		sink:        sink,
		retryDelay:  DefaultRetryDelay,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Topic returns the topic records are consumed from.
func (in *Intake) Topic() string {
	return in.topic
}

// Stats returns current counters.
func (in *Intake) Stats() IntakeStats {
	return IntakeStats{
		Received: in.received.Load(),
		Recorded: in.recorded.Load(),
		Rejected: in.rejected.Load(),
		Retried:  in.retried.Load(),
	}
}

// RunWithContext subscribes and processes messages until ctx is cancelled
// or the subscription closes.
func (in *Intake) RunWithContext(ctx context.Context) error {
	messages, err := in.source.Subscribe(ctx, in.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", in.topic, err)
	}

	logging.Info().Str("topic", in.topic).Msg("Record intake started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Int64("recorded", in.recorded.Load()).Msg("Record intake stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("subscription to %s closed", in.topic)
			}
			if !in.processMessage(ctx, msg) {
				in.backoff(ctx)
			}
		}
	}
}

// processMessage acks or nacks msg. It returns false when the message was
// nacked.
func (in *Intake) processMessage(ctx context.Context, msg *message.Message) bool {
	in.received.Add(1)

	rec, err := DecodeRecord(msg)
	if err != nil {
		in.reject(msg, err)
		return true
	}

	if id := msg.Metadata.Get(MetadataCorrelationID); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	} else {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}

	hash, err := in.sink.Record(ctx, rec)
	switch {
	case err == nil:
	case errors.Is(err, audit.ErrValidation):
		in.reject(msg, err)
		return true
	default:
		if in.failed(msg.UUID) >= in.maxAttempts {
			in.reject(msg, fmt.Errorf("giving up after %d attempts: %w", in.maxAttempts, err))
			return true
		}
		in.retried.Add(1)
		metrics.RecordIntake(intakeRetried)
		logging.Ctx(ctx).Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Str("audit_log_id", rec.ID).
			Msg("Failed to record audit record, requesting redelivery")
		msg.Nack()
		return false
	}

	in.failingUUID, in.attempts = "", 0
	in.recorded.Add(1)
	metrics.RecordIntake(intakeRecorded)
	evt := logging.Ctx(ctx).Debug().Str("audit_log_id", rec.ID)
	if hash != nil {
		evt = evt.Int64("sequence", hash.Sequence)
	}
	evt.Msg("Audit record consumed")
	msg.Ack()
	return true
}

// failed counts consecutive failed deliveries of uuid.
func (in *Intake) failed(uuid string) int {
	if in.failingUUID != uuid {
		in.failingUUID, in.attempts = uuid, 0
	}
	in.attempts++
	return in.attempts
}

func (in *Intake) reject(msg *message.Message, err error) {
	in.failingUUID, in.attempts = "", 0
	in.rejected.Add(1)
	metrics.RecordIntake(intakeRejected)
	logging.Warn().Err(err).
		Str("message_uuid", msg.UUID).
		Str("topic", in.topic).
		Msg("Dropping audit record message")
	msg.Ack()
}

func (in *Intake) backoff(ctx context.Context) {
	t := time.NewTimer(in.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// IntakeSubscriber returns a subscriber for the record intake topic. The
// memory backend shares its GoChannel with the publisher. The nats backend
// opens a core NATS subscriber that Close releases.
func (p *Publisher) IntakeSubscriber(natsURL string) (message.Subscriber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.subscriber != nil {
		return p.subscriber, nil
	}
	if p.backend != BackendNATS {
		return nil, fmt.Errorf("backend %s does not support record intake", p.backend)
	}
	if p.intake != nil {
		return p.intake, nil
	}

	logger := watermill.NewSlogLogger(logging.NewSlogLoggerWithComponent("watermill"))
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              natsURL,
		QueueGroupPrefix: "auditkeep-intake",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions: []natsgo.Option{
			natsgo.Name("auditkeep-intake"),
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
		},
		Unmarshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill NATS subscriber: %w", err)
	}
	p.intake = sub
	return sub, nil
}

// EncodeRecord builds the watermill message for rec. A record id, when
// set, doubles as the message UUID and the NATS deduplication id.
func EncodeRecord(ctx context.Context, rec *audit.Record) (*message.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("serialize audit record: %w", err)
	}
	id := rec.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(MetadataTableName, rec.TableName)
	msg.Metadata.Set(natsgo.MsgIdHdr, id)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set(MetadataCorrelationID, cid)
	}
	msg.SetContext(ctx)
	return msg, nil
}

// DecodeRecord parses a message produced by EncodeRecord.
func DecodeRecord(msg *message.Message) (*audit.Record, error) {
	var rec audit.Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return nil, fmt.Errorf("deserialize audit record: %w", err)
	}
	return &rec, nil
}
