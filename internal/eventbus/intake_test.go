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
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/auditkeep/internal/audit"
	"github.com/tomtom215/auditkeep/internal/hashchain"
	"github.com/tomtom215/auditkeep/internal/logging"
)

const recordsTopic = "audit.records"

// newPersistentChannel keeps messages published before the intake
// subscribes.
func newPersistentChannel(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ch := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// subscribeSignal closes subscribed once the intake holds its subscription.
type subscribeSignal struct {
	message.Subscriber
	subscribed chan struct{}
}

func (s *subscribeSignal) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	out, err := s.Subscriber.Subscribe(ctx, topic)
	close(s.subscribed)
	return out, err
}

func intakeRecord(id string) *audit.Record {
	return &audit.Record{
		ID:        id,
		TableName: "permits",
		RecordID:  "permit-" + id,
		Action:    audit.ActionUpdate,
		NewValues: map[string]interface{}{"status": "issued"},
		ChangedBy: "clerk-1",
		IPAddress: "10.0.0.7",
	}
}

func publishRecord(t *testing.T, pub message.Publisher, rec *audit.Record) {
	t.Helper()
	msg, err := EncodeRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("EncodeRecord failed: %v", err)
	}
	if err := pub.Publish(recordsTopic, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func startIntake(t *testing.T, in *Intake) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("RunWithContext error = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("intake did not stop")
		}
	})
}

func waitForStats(t *testing.T, in *Intake, done func(IntakeStats) bool) IntakeStats {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := in.Stats(); done(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := in.Stats()
	t.Fatalf("intake stats never settled: %+v", s)
	return s
}

// scriptedSink fails every call with err and counts calls.
type scriptedSink struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *scriptedSink) Record(context.Context, *audit.Record) (*audit.HashRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, s.err
}

func (s *scriptedSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestIntake_ChainsInDeliveryOrder(t *testing.T) {
	store := audit.NewMemoryStore()
	engine, err := hashchain.NewEngine(store, hashchain.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	writer := hashchain.NewWriter(engine, nil, 16)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	go func() { _ = writer.RunWithContext(writerCtx) }()

	// Each Publish returns only after the intake acked the message.
	ch := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })
	source := &subscribeSignal{Subscriber: ch, subscribed: make(chan struct{})}

	in := NewIntake(source, recordsTopic, audit.NewRecorder(store, writer))
	startIntake(t, in)
	<-source.subscribed

	ids := make([]string, 6)
	for i := range ids {
		ids[i] = fmt.Sprintf("rec-%02d", i)
		publishRecord(t, ch, intakeRecord(ids[i]))
	}
	waitForStats(t, in, func(s IntakeStats) bool { return s.Recorded == int64(len(ids)) })

	for i, id := range ids {
		hr, err := store.GetHashByRecordID(context.Background(), id)
		if err != nil {
			t.Fatalf("record %s not chained: %v", id, err)
		}
		if hr.Sequence != int64(i+1) {
			t.Errorf("record %s sequence = %d, want %d", id, hr.Sequence, i+1)
		}
	}

	report, err := hashchain.NewVerifier(store, nil).Check(context.Background(), 100)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if report.Verified != int64(len(ids)) || report.Tampered != 0 {
		t.Errorf("report = %+v, want every consumed record verified", report)
	}
}

func TestIntake_DropsMalformedAndInvalidRecords(t *testing.T) {
	store := audit.NewMemoryStore()
	ch := newPersistentChannel(t)

	if err := ch.Publish(recordsTopic, message.NewMessage("garbage", []byte("{not json"))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	invalid := intakeRecord("no-actor")
	invalid.ChangedBy = ""
	publishRecord(t, ch, invalid)
	publishRecord(t, ch, intakeRecord("good"))

	in := NewIntake(ch, recordsTopic, audit.NewRecorder(store, nil))
	startIntake(t, in)
	s := waitForStats(t, in, func(s IntakeStats) bool { return s.Received == 3 })

	if s.Rejected != 2 || s.Recorded != 1 || s.Retried != 0 {
		t.Errorf("stats = %+v, want 2 rejected, 1 recorded", s)
	}
	if _, err := store.GetRecord(context.Background(), "good"); err != nil {
		t.Errorf("valid record not stored: %v", err)
	}
	if _, err := store.GetRecord(context.Background(), "no-actor"); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("invalid record lookup error = %v, want ErrNotFound", err)
	}
}

func TestIntake_RetriesThenDrops(t *testing.T) {
	ch := newPersistentChannel(t)
	publishRecord(t, ch, intakeRecord("stuck"))

	sink := &scriptedSink{err: errors.New("chain writer stopped")}
	in := NewIntake(ch, recordsTopic, sink)
	in.retryDelay = time.Millisecond
	in.maxAttempts = 3
	startIntake(t, in)

	s := waitForStats(t, in, func(s IntakeStats) bool { return s.Rejected == 1 })
	if s.Retried != 2 || s.Recorded != 0 {
		t.Errorf("stats = %+v, want 2 retries before the drop", s)
	}
	if got := sink.Calls(); got != 3 {
		t.Errorf("sink calls = %d, want 3", got)
	}
}

func TestIntake_SubscribeFailure(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	_ = ch.Close()

	err := NewIntake(ch, recordsTopic, &scriptedSink{}).RunWithContext(context.Background())
	if err == nil {
		t.Fatal("expected subscribe error on a closed channel")
	}
}

func TestEncodeRecord_Metadata(t *testing.T) {
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-9")

	msg, err := EncodeRecord(ctx, intakeRecord("rec-1"))
	if err != nil {
		t.Fatalf("EncodeRecord failed: %v", err)
	}
	if msg.UUID != "rec-1" {
		t.Errorf("UUID = %q, want the record id", msg.UUID)
	}
	if msg.Metadata.Get(MetadataTableName) != "permits" || msg.Metadata.Get(MetadataCorrelationID) != "corr-9" {
		t.Errorf("metadata = %v", msg.Metadata)
	}

	anon, err := EncodeRecord(context.Background(), intakeRecord(""))
	if err != nil {
		t.Fatalf("EncodeRecord failed: %v", err)
	}
	if anon.UUID == "" {
		t.Error("a record without id still needs a message UUID")
	}
	decoded, err := DecodeRecord(anon)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if decoded.ID != "" || decoded.RecordID != "permit-" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublisher_IntakeSubscriber(t *testing.T) {
	p, err := New(memoryConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sub, err := p.IntakeSubscriber("")
	if err != nil || sub == nil {
		t.Fatalf("IntakeSubscriber = %v, %v; want the shared channel", sub, err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := p.IntakeSubscriber(""); !errors.Is(err, ErrClosed) {
		t.Errorf("IntakeSubscriber after Close error = %v, want ErrClosed", err)
	}

	custom := NewWithPublisher(&failingPublisher{}, "t", nil)
	if _, err := custom.IntakeSubscriber(""); err == nil {
		t.Error("custom publisher has no intake subscriber")
	}
}
