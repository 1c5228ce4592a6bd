package redis

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("REDIS_PORT"))
	if port == 0 {
		port = 6379
	}

	client := NewClient(Config{Host: host, Port: port}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockerAcquireRelease(t *testing.T) {
	client := getTestClient(t)
	locker := NewLocker(client, LockerConfig{Prefix: "fern:test:" + uuid.NewString() + ":"})
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "series:A", time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "series:A", time.Second)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, held.Extend(ctx, 2*time.Second))
	require.NoError(t, held.Release(ctx))
	assert.ErrorIs(t, held.Release(ctx), ErrLockNotHeld)
}

func TestLockerWithLockSerializes(t *testing.T) {
	client := getTestClient(t)
	locker := NewLocker(client, LockerConfig{
		Prefix:      "fern:test:" + uuid.NewString() + ":",
		TTL:         3 * time.Second,
		WaitTimeout: 5 * time.Second,
	})

	var inside, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "sale:s-1", func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps)
}
