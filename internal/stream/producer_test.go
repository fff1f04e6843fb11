package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"confluence-engine/config"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSendSignalPublishesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newSignalPublisher(w, "confluence.signals", zerolog.Nop())
	fixed := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	ctx, _ := logging.WithTraceContext(context.Background(), zerolog.Nop())
	sig := &signal.TradingSignal{ID: "sig-1", Symbol: "BTCUSDT", Direction: market.Short, Confidence: 0.8}

	if err := p.SendSignal(ctx, sig); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "confluence.signals" || string(msg.Key) != "BTCUSDT" {
		t.Errorf("topic/key = %s/%s", msg.Topic, msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "trace_id" {
		t.Fatalf("headers = %v", msg.Headers)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "signal" || env.Signal == nil || env.Signal.ID != "sig-1" {
		t.Errorf("envelope = %+v", env)
	}
	if env.TraceID != string(msg.Headers[0].Value) || env.TraceID != logging.TraceID(ctx) {
		t.Errorf("trace id mismatch: %q vs header %q", env.TraceID, msg.Headers[0].Value)
	}
	if !env.PublishedAt.Equal(fixed) {
		t.Errorf("published_at = %v", env.PublishedAt)
	}
}

func TestSendSignalWithoutTrace(t *testing.T) {
	w := &fakeWriter{}
	p := newSignalPublisher(w, "t", zerolog.Nop())
	if err := p.SendSignal(context.Background(), &signal.TradingSignal{Symbol: "ETHUSDT"}); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs[0].Headers) != 0 {
		t.Error("no trace header expected without a traced context")
	}
	if err := p.SendSignal(context.Background(), nil); err != nil || len(w.msgs) != 1 {
		t.Error("nil signal should be ignored")
	}
}

func TestSendSignalWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newSignalPublisher(w, "t", zerolog.Nop())
	err := p.SendSignal(context.Background(), &signal.TradingSignal{Symbol: "X"})
	if err == nil || !errors.Is(err, w.err) {
		t.Errorf("err = %v, want wrapped write error", err)
	}
	if p.Close() != nil || !w.closed {
		t.Error("Close should close the writer")
	}
}

func TestNewSignalPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewSignalPublisher(config.KafkaConfig{Topic: "t"}, zerolog.Nop()); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("err = %v, want ErrNoBrokers", err)
	}
	p, err := NewSignalPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, zerolog.Nop())
	if err != nil || p.Name() != "kafka" {
		t.Fatalf("NewSignalPublisher: %v", err)
	}
	_ = p.Close()
}
