// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/breaker"
	"github.com/tomtom215/auditkeep/internal/config"
	"github.com/tomtom215/auditkeep/internal/logging"
	"github.com/tomtom215/auditkeep/internal/metrics"
)

// Backends
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Message metadata keys
const (
	MetadataEventType     = "event_type"
	MetadataSeverity      = "severity"
	MetadataCorrelationID = "correlation_id"
)

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("publisher is closed")

// Publisher fans security events out to a watermill topic with circuit
// breaker protection.
type Publisher struct {
	publisher message.Publisher

	// subscriber is set for the in-process backend only.
	subscriber message.Subscriber

	// intake is the NATS record subscriber, opened on first use.
	intake message.Subscriber

	topic   string
	backend string
	breaker *breaker.Breaker
	log     *logging.EventLogger

	mu     sync.RWMutex
	closed bool
}

// New creates a publisher for the configured backend. The memory backend
// delivers in-process through a watermill GoChannel; the nats backend
// publishes to core NATS subjects.
func New(cfg config.EventsConfig) (*Publisher, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLoggerWithComponent("watermill"))
	br := breaker.New("event-bus", cfg.Breaker)

	switch cfg.Backend {
	case BackendMemory, "":
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger)
		p := newPublisher(ch, cfg.Topic, BackendMemory, br)
		p.subscriber = ch
		return p, nil

	case BackendNATS:
		pub, err := newNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		return newPublisher(pub, cfg.Topic, BackendNATS, br), nil

	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.Backend)
	}
}

// NewWithPublisher wraps an existing watermill publisher. br may be nil.
func NewWithPublisher(pub message.Publisher, topic string, br *breaker.Breaker) *Publisher {
	return newPublisher(pub, topic, "custom", br)
}

func newPublisher(pub message.Publisher, topic, backend string, br *breaker.Breaker) *Publisher {
	p := &Publisher{
		publisher: pub,
		topic:     topic,
		backend:   backend,
		breaker:   br,
		log:       logging.NewEventLogger(),
	}
	p.log.LogPublisherStarted(backend, topic)
	return p
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("auditkeep"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill NATS publisher: %w", err)
	}
	return pub, nil
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishSecurityEvent serializes ev and publishes it to the topic.
func (p *Publisher) PublishSecurityEvent(ctx context.Context, ev *audit.SecurityEvent) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	msg, err := Encode(ctx, ev)
	if err != nil {
		return err
	}

	publish := func() error { return p.publisher.Publish(p.topic, msg) }
	if p.breaker != nil {
		err = p.breaker.Do(publish)
	} else {
		err = publish()
	}

	metrics.RecordSecurityEventPublish(err)
	if err != nil {
		p.log.LogPublishFailed(ctx, ev.ID, p.topic, err)
		return fmt.Errorf("publish security event %s: %w", ev.ID, err)
	}
	p.log.LogEventPublished(ctx, ev.ID, p.topic)
	return nil
}

// Subscribe returns the in-process stream of published events. Only the
// memory backend supports it.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if p.subscriber == nil {
		return nil, fmt.Errorf("backend %s does not support in-process subscription", p.backend)
	}
	return p.subscriber.Subscribe(ctx, p.topic)
}

// Close shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.log.LogPublisherStopped()
	var errs []error
	if p.intake != nil {
		errs = append(errs, p.intake.Close())
	}
	errs = append(errs, p.publisher.Close())
	return errors.Join(errs...)
}

// Encode builds the watermill message for ev. The event id doubles as the
// message UUID and as the NATS deduplication id.
func Encode(ctx context.Context, ev *audit.SecurityEvent) (*message.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("serialize security event: %w", err)
	}

	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set(MetadataEventType, string(ev.EventType))
	msg.Metadata.Set(MetadataSeverity, string(ev.Severity))
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.ID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetadataCorrelationID, id)
	}
	msg.SetContext(ctx)
	return msg, nil
}

// Decode parses a message produced by Encode.
func Decode(msg *message.Message) (*audit.SecurityEvent, error) {
	var ev audit.SecurityEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("deserialize security event: %w", err)
	}
	return &ev, nil
}
