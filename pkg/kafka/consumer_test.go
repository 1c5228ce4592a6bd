package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/ratetable"
	"github.com/Ramsey-B/fern/pkg/repositories/memory"
	"github.com/Ramsey-B/fern/pkg/settlement"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeDLQ struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func (d *fakeDLQ) PublishDeadLetter(ctx context.Context, letter DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, letter)
	return nil
}

func (d *fakeDLQ) Letters() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DeadLetter(nil), d.letters...)
}

func testConsumer(reader *fakeReader, dlq *fakeDLQ) *Consumer {
	cfg := DefaultConsumerConfig()
	c := newConsumer(reader, cfg, dlq, noopLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestNewConsumerValidatesConfig(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{}, nil, noopLogger())
	assert.Error(t, err)

	_, err = NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}}, nil, noopLogger())
	assert.Error(t, err)
}

func TestConsumerCommitsAfterSuccess(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		{Offset: 1, Value: []byte("a"), Headers: []kafka.Header{{Key: "actor", Value: []byte("ops-1")}}},
		{Offset: 2, Value: []byte("b")},
	}}
	c := testConsumer(reader, &fakeDLQ{})

	var mu sync.Mutex
	var actors []string
	var sources []string
	require.NoError(t, c.Start(context.Background(), func(ctx context.Context, msg *ReceivedMessage) error {
		mu.Lock()
		defer mu.Unlock()
		actors = append(actors, fctx.GetActor(ctx))
		sources = append(sources, fctx.GetSource(ctx))
		return nil
	}))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []int64{1, 2}, reader.Committed())
	assert.Equal(t, []string{"ops-1", fctx.SystemActor}, actors)
	assert.Equal(t, []string{"kafka", "kafka"}, sources)
	assert.True(t, reader.closed)
}

func TestConsumerRetriesTransientErrors(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Offset: 5, Value: []byte("a")}}}
	dlq := &fakeDLQ{}
	c := testConsumer(reader, dlq)

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, c.Start(context.Background(), func(ctx context.Context, msg *ReceivedMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return apperrors.NewPersistenceError("insert", errors.New("connection reset"))
		}
		return nil
	}))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, 3, attempts)
	assert.Empty(t, dlq.Letters())
}

func TestConsumerDeadLettersPermanentErrors(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Topic: "settlement.commands", Offset: 9, Key: []byte("S-1"), Value: []byte(`{"type":"x"}`)}}}
	dlq := &fakeDLQ{}
	c := testConsumer(reader, dlq)

	require.NoError(t, c.Start(context.Background(), func(ctx context.Context, msg *ReceivedMessage) error {
		return &apperrors.SeriesClosedError{SeriesID: "tulum-1"}
	}))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	letters := dlq.Letters()
	require.Len(t, letters, 1)
	assert.Equal(t, int64(9), letters[0].Offset)
	assert.Equal(t, "S-1", letters[0].Key)
	assert.Contains(t, letters[0].Error, "tulum-1")
}

func TestConsumerLeavesOffsetOnShutdownDuringRetry(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Offset: 3, Value: []byte("a")}}}
	c := testConsumer(reader, &fakeDLQ{})

	called := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx, func(ctx context.Context, msg *ReceivedMessage) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return &apperrors.ConcurrentModificationError{RecordID: "r"}
	}))

	<-called
	cancel()
	require.NoError(t, c.Stop())
	assert.Empty(t, reader.Committed())
}

type unavailableLocker struct{}

func (unavailableLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func TestConsumerKeepsSaleWhenLockBackendIsDown(t *testing.T) {
	rates, err := ratetable.Default()
	require.NoError(t, err)
	engine := settlement.NewEngine(memory.New(), unavailableLocker{}, rates, events.NopPublisher{}, noopLogger(), settlement.Options{DefaultUnitTarget: 48})
	handler := NewSettlementHandler(engine, noopLogger())

	value := `{"type": "sale.completed", "data": {"sale_id": "S-1", "buyer_id": "buyer-1", "seller_id": "A",
		"property_series_id": "tulum-1", "tier": "gold", "amount": "10000.00", "occurred_at": "2024-03-01T12:00:00Z"}}`
	reader := &fakeReader{pending: []kafka.Message{{Offset: 4, Key: []byte("S-1"), Value: []byte(value)}}}
	dlq := &fakeDLQ{}
	c := testConsumer(reader, dlq)

	var mu sync.Mutex
	var lastErr error
	attempts := 0
	require.NoError(t, c.Start(context.Background(), func(ctx context.Context, msg *ReceivedMessage) error {
		err := handler.Handle(ctx, msg)
		mu.Lock()
		defer mu.Unlock()
		attempts++
		lastErr = err
		return err
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, apperrors.IsTransient(lastErr))
	assert.Empty(t, reader.Committed())
	assert.Empty(t, dlq.Letters())
}

func TestConsumerStartTwice(t *testing.T) {
	c := testConsumer(&fakeReader{}, &fakeDLQ{})
	handler := func(ctx context.Context, msg *ReceivedMessage) error { return nil }

	require.NoError(t, c.Start(context.Background(), handler))
	assert.Error(t, c.Start(context.Background(), handler))
	require.NoError(t, c.Stop())
}
