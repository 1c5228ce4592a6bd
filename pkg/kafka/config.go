package kafka

import (
	"strings"
	"time"
)

// ConsumerConfig configures the settlement command consumer
type ConsumerConfig struct {
	// Brokers is a list of Kafka broker addresses
	Brokers []string

	// Topic carries sale.completed, refund.requested and payout.confirmed commands
	Topic string

	// GroupID is the consumer group ID
	GroupID string

	// MinBytes is the minimum batch size for fetching messages
	MinBytes int

	// MaxBytes is the maximum batch size for fetching messages
	MaxBytes int

	// MaxWait is the maximum time to wait for messages
	MaxWait time.Duration

	// StartOffset determines where to start reading when there's no committed offset
	StartOffset int64

	// SessionTimeout is the session timeout for the consumer group
	SessionTimeout time.Duration

	// HeartbeatInterval is how often to send heartbeats to the broker
	HeartbeatInterval time.Duration

	// RetryBackoff is the first delay before retrying a transient failure
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the delay between retries
	MaxRetryBackoff time.Duration
}

// DefaultConsumerConfig returns a ConsumerConfig with sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		Topic:             "settlement.commands",
		GroupID:           "fern-settlement",
		MinBytes:          1,
		MaxBytes:          10e6, // 10MB
		MaxWait:           3 * time.Second,
		StartOffset:       FirstOffset,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		RetryBackoff:      200 * time.Millisecond,
		MaxRetryBackoff:   30 * time.Second,
	}
}

// ProducerConfig configures the settlement event producer
type ProducerConfig struct {
	// Brokers is a list of Kafka broker addresses
	Brokers []string

	// Topic receives settlement events
	Topic string

	// DeadLetterTopic receives commands that can never succeed
	DeadLetterTopic string

	// BatchSize is the number of messages to batch before sending
	BatchSize int

	// BatchTimeout is the maximum time to wait before sending a batch
	BatchTimeout time.Duration

	// RequiredAcks: 0 = no acks, 1 = leader only, -1 = all replicas
	RequiredAcks int

	// MaxAttempts is the maximum number of write attempts
	MaxAttempts int

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration
}

// DefaultProducerConfig returns a ProducerConfig with sensible defaults
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		Topic:           "settlement.events",
		DeadLetterTopic: "settlement.commands.dlq",
		BatchSize:       100,
		BatchTimeout:    10 * time.Millisecond,
		RequiredAcks:    -1,
		MaxAttempts:     3,
		WriteTimeout:    10 * time.Second,
	}
}

// ParseBrokers splits a comma-separated broker list
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Offset constants
const (
	FirstOffset int64 = -2 // Start from the oldest message
	LastOffset  int64 = -1 // Start from the newest message
)
