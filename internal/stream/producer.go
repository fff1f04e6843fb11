// Package stream publishes generated signals to Kafka for downstream
// executors and dashboards.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"confluence-engine/config"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/signal"
)

var ErrNoBrokers = errors.New("kafka brokers are required")

// messageWriter is the part of kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the wire form of a published signal
type Envelope struct {
	Type        string                `json:"type"`
	TraceID     string                `json:"trace_id,omitempty"`
	PublishedAt time.Time             `json:"published_at"`
	Signal      *signal.TradingSignal `json:"signal"`
}

// SignalPublisher is a scheduler SignalSink writing to one topic. Messages
// are keyed by symbol so each symbol's signals stay ordered within a partition.
type SignalPublisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
	now    func() time.Time
}

// NewSignalPublisher creates a synchronous, all-acks writer for cfg.Topic
func NewSignalPublisher(cfg config.KafkaConfig, logger zerolog.Logger) (*SignalPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	}

	p := newSignalPublisher(writer, cfg.Topic, logger)
	p.logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Kafka signal publisher ready")
	return p, nil
}

func newSignalPublisher(w messageWriter, topic string, logger zerolog.Logger) *SignalPublisher {
	return &SignalPublisher{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "kafka").Logger(),
		now:    time.Now,
	}
}

// Name identifies the sink
func (p *SignalPublisher) Name() string { return "kafka" }

// SendSignal publishes sig as a JSON envelope
func (p *SignalPublisher) SendSignal(ctx context.Context, sig *signal.TradingSignal) error {
	if sig == nil {
		return nil
	}

	traceID := logging.TraceID(ctx)
	value, err := json.Marshal(Envelope{
		Type:        "signal",
		TraceID:     traceID,
		PublishedAt: p.now().UTC(),
		Signal:      sig,
	})
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(sig.Symbol),
		Value: value,
		Time:  p.now(),
	}
	if traceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	p.logger.Debug().Str("symbol", sig.Symbol).Str("signal_id", sig.ID).Int("bytes", len(value)).Msg("Signal published")
	return nil
}

// Close flushes and closes the writer
func (p *SignalPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
