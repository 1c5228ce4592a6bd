package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing or extending a lock owned by someone else.
var ErrLockNotHeld = errors.New("lock not held")

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Lock is a held distributed lock.
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

type LockerConfig struct {
	Prefix string
	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// WaitTimeout bounds how long WithLock waits for a busy key.
	WaitTimeout time.Duration
}

// Locker provides distributed locking with SET NX and owner-checked release.
type Locker struct {
	client *Client
	cfg    LockerConfig
}

var _ lock.Locker = (*Locker)(nil)

func NewLocker(client *Client, cfg LockerConfig) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = "fern:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	return &Locker{client: client, cfg: cfg}
}

// Acquire makes a single attempt and returns lock.ErrNotAcquired when the key is held.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.cfg.Prefix + key
	value := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lock.ErrNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)
	return &Lock{client: l.client, key: lockKey, value: value, ttl: ttl}, nil
}

// TryAcquire retries Acquire with capped exponential backoff until timeout.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		held, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			return held, nil
		}
		if !errors.Is(err, lock.ErrNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", lock.ErrNotAcquired, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

// WithLock holds key while fn runs, extending the TTL in the background.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	held, err := l.TryAcquire(ctx, key, l.cfg.TTL, l.cfg.WaitTimeout)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.cfg.TTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := held.Extend(context.WithoutCancel(ctx), l.cfg.TTL); err != nil {
					l.client.logger.WithContext(ctx).WithError(err).Warnf("failed to extend lock %s", held.key)
				}
			}
		}
	}()

	defer func() {
		close(stop)
		<-done
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			l.client.logger.WithContext(ctx).WithError(err).Warnf("failed to release lock %s", held.key)
		}
	}()

	return fn(ctx)
}

func (lk *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lk.client.rdb, []string{lk.key}, lk.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	lk.client.logger.WithContext(ctx).Debugf("Released lock: %s", lk.key)
	return nil
}

func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lk.client.rdb, []string{lk.key}, lk.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	lk.ttl = ttl
	return nil
}
