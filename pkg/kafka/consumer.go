package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is called for each message received from Kafka
type MessageHandler func(ctx context.Context, msg *ReceivedMessage) error

// DeadLetterPublisher receives commands that failed permanently
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, letter DeadLetter) error
}

// ReceivedMessage wraps a Kafka message with its parsed headers
type ReceivedMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   MessageHeaders
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer applies settlement commands. A message is committed once it
// succeeded or was dead-lettered; transient failures are retried with
// backoff and never committed, so a restart redelivers them.
type Consumer struct {
	reader  messageReader
	dlq     DeadLetterPublisher
	logger  ectologger.Logger
	config  ConsumerConfig
	handler MessageHandler
	sleep   func(ctx context.Context, d time.Duration) error
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config ConsumerConfig, dlq DeadLetterPublisher, logger ectologger.Logger) (*Consumer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if config.GroupID == "" {
		return nil, fmt.Errorf("group ID is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           config.Brokers,
		Topic:             config.Topic,
		GroupID:           config.GroupID,
		MinBytes:          config.MinBytes,
		MaxBytes:          config.MaxBytes,
		MaxWait:           config.MaxWait,
		StartOffset:       config.StartOffset,
		SessionTimeout:    config.SessionTimeout,
		HeartbeatInterval: config.HeartbeatInterval,
	})

	return newConsumer(reader, config, dlq, logger), nil
}

func newConsumer(reader messageReader, config ConsumerConfig, dlq DeadLetterPublisher, logger ectologger.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		dlq:    dlq,
		logger: logger,
		config: config,
		sleep:  sleepCtx,
	}
}

// Start begins consuming messages in the background
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.running = true
	c.handler = handler
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Infof("Kafka consumer started for topic %s (group: %s)", c.config.Topic, c.config.GroupID)
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}

	c.logger.Info("Kafka consumer stopped")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.WithError(err).Error("Failed to fetch message")
			if c.sleep(ctx, c.config.RetryBackoff) != nil {
				return
			}
			continue
		}

		if !c.handle(ctx, msg) {
			// Cancelled mid-retry; leave the offset uncommitted.
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).Errorf("Failed to commit message at offset %d", msg.Offset)
		}
	}
}

// handle reports whether msg reached a final outcome and may be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	received := toReceived(msg)

	ctx = tracing.ExtractContext(ctx, received.Headers.TraceParent, received.Headers.TraceState)
	ctx = fctx.SetSource(ctx, "kafka")
	if received.Headers.Actor != "" {
		ctx = fctx.SetUserID(ctx, received.Headers.Actor)
	}

	msgType := received.Headers.Type
	if msgType == "" {
		msgType = "unknown"
	}

	backoff := c.config.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, received)
		if err == nil {
			metrics.RecordKafkaMessage(msgType, "success")
			return true
		}

		if !apperrors.IsTransient(err) {
			metrics.RecordKafkaMessage(msgType, "dead_letter")
			c.deadLetter(ctx, received, err)
			return true
		}
		metrics.RecordKafkaMessage(msgType, "retry")

		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"offset":  msg.Offset,
			"attempt": attempt,
			"backoff": backoff.String(),
		}).Warn("transient failure handling message, retrying")

		if c.sleep(ctx, backoff) != nil {
			return false
		}
		backoff *= 2
		if c.config.MaxRetryBackoff > 0 && backoff > c.config.MaxRetryBackoff {
			backoff = c.config.MaxRetryBackoff
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg *ReceivedMessage, cause error) {
	c.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
		"key":    string(msg.Key),
	}).Warn("message rejected, sending to dead letter topic")

	if c.dlq == nil {
		return
	}
	if err := c.dlq.PublishDeadLetter(ctx, newDeadLetter(msg, cause, time.Now().UTC())); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("failed to publish dead letter")
	}
}

func toReceived(msg kafka.Message) *ReceivedMessage {
	headers := make([]Header, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = Header{Key: h.Key, Value: h.Value}
	}
	return &ReceivedMessage{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   ExtractHeaders(headers),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errNoStats = errors.New("reader does not report stats")

// Lag returns the current consumer group lag
func (c *Consumer) Lag() (int64, error) {
	r, ok := c.reader.(*kafka.Reader)
	if !ok {
		return 0, errNoStats
	}
	return r.Stats().Lag, nil
}
