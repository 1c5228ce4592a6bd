package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/settlement"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSweeperAlreadyRunning is returned when trying to start an already running sweeper
	ErrSweeperAlreadyRunning = errors.New("sweeper already running")
)

const (
	// DefaultInterval is the default interval between sweeps
	DefaultInterval = time.Minute

	// LeaderKey is held for the duration of a sweep so one instance sweeps at a time
	LeaderKey = "sweep:leader"
)

// Approver approves commissions whose hold has matured.
type Approver interface {
	ApproveMatured(ctx context.Context, limit int) (*settlement.SweepResult, error)
}

// Config holds configuration for the sweeper
type Config struct {
	// Interval is how often to look for matured holds
	Interval time.Duration

	// BatchSize is the maximum number of records approved per pass
	BatchSize int
}

// Sweeper periodically moves matured pending commissions to approved.
type Sweeper struct {
	approver Approver
	locker   lock.Locker
	config   Config
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

func NewSweeper(approver Approver, locker lock.Locker, config Config, logger ectologger.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = settlement.DefaultSweepBatch
	}

	return &Sweeper{
		approver: approver,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every Interval until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSweeperAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting sweeper: interval=%s batch_size=%d", s.config.Interval, s.config.BatchSize)

	go s.loop(context.WithoutCancel(ctx))
	return nil
}

// Stop waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Sweeper stopped")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Sweeper shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps until a pass approves fewer than BatchSize records. It is
// skipped when another instance holds the leader key.
func (s *Sweeper) RunOnce(ctx context.Context) {
	ctx = fctx.SetSource(ctx, "sweep")
	ctx, span := tracing.StartSpan(ctx, "Sweeper.RunOnce")
	defer span.End()

	start := time.Now()
	total := 0
	err := s.locker.WithLock(ctx, LeaderKey, func(ctx context.Context) error {
		for {
			result, err := s.approver.ApproveMatured(ctx, s.config.BatchSize)
			if err != nil {
				return err
			}
			total += len(result.Approved)
			if result.Scanned < s.config.BatchSize || len(result.Approved) == 0 {
				return nil
			}
		}
	})

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		metrics.RecordSweep("skipped")
		s.logger.WithContext(ctx).Debug("another instance is sweeping, skipping")
	case err != nil:
		s.logger.WithContext(ctx).WithError(err).Error("sweep failed")
	default:
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"approved": total,
			"duration": time.Since(start).String(),
		}).Info("sweep completed")
	}
}
