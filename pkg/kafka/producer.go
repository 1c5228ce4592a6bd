package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes settlement events and dead letters
type Producer struct {
	writer          messageWriter
	deadLetter      messageWriter
	logger          ectologger.Logger
	topic           string
	deadLetterTopic string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	p := &Producer{
		writer:          newWriter(cfg, cfg.Topic),
		logger:          logger,
		topic:           cfg.Topic,
		deadLetterTopic: cfg.DeadLetterTopic,
	}
	if cfg.DeadLetterTopic != "" {
		p.deadLetter = newWriter(cfg, cfg.DeadLetterTopic)
	}
	return p, nil
}

func newWriter(cfg ProducerConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		AllowAutoTopicCreation: true,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if p.deadLetter != nil {
		if err := p.deadLetter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Publish writes events keyed by sale or series so a partition sees them in order.
func (p *Producer) Publish(ctx context.Context, evts ...events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.Int("messaging.batch.message_count", len(evts)),
	)

	msgs := make([]kafka.Message, 0, len(evts))
	for _, ev := range evts {
		data, err := json.Marshal(ev)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "marshal failed")
			return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.Key),
			Value:   data,
			Headers: p.headers(ctx, ev),
			Time:    ev.OccurredAt,
		})
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %d events to Kafka topic %s", len(msgs), p.topic)
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success")

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":       p.topic,
		"count":       len(msgs),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("published settlement events")

	return nil
}

// PublishDeadLetter parks a command that can never be applied.
func (p *Producer) PublishDeadLetter(ctx context.Context, letter DeadLetter) error {
	if p.deadLetter == nil {
		return fmt.Errorf("dead letter topic is not configured")
	}

	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	headers := []kafka.Header{
		{Key: "source_topic", Value: []byte(letter.Topic)},
		{Key: "error", Value: []byte(letter.Error)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := p.deadLetter.WriteMessages(ctx, kafka.Message{
		Key:     []byte(letter.Key),
		Value:   data,
		Headers: headers,
	}); err != nil {
		metrics.RecordKafkaPublish(p.deadLetterTopic, "error")
		return err
	}
	metrics.RecordKafkaPublish(p.deadLetterTopic, "success")
	return nil
}

func (p *Producer) headers(ctx context.Context, ev events.Event) []kafka.Header {
	headers := []kafka.Header{
		{Key: "type", Value: []byte(ev.Type)},
		{Key: "event_id", Value: []byte(ev.ID.String())},
		{Key: "actor", Value: []byte(ev.Actor)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}
	return headers
}
