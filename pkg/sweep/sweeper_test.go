package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/settlement"
)

type fakeApprover struct {
	mu      sync.Mutex
	pending int
	calls   int
	sources []string
	err     error
}

func (f *fakeApprover) ApproveMatured(ctx context.Context, limit int) (*settlement.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sources = append(f.sources, fctx.GetSource(ctx))
	if f.err != nil {
		return nil, f.err
	}
	n := min(limit, f.pending)
	f.pending -= n
	return &settlement.SweepResult{Scanned: n, Approved: make([]models.CommissionRecord, n)}, nil
}

func (f *fakeApprover) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// busyLocker reports every key as held elsewhere.
type busyLocker struct{}

func (busyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return lock.ErrNotAcquired
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRunOnceDrainsInBatches(t *testing.T) {
	approver := &fakeApprover{pending: 25}
	s := NewSweeper(approver, lock.NewLocal(), Config{BatchSize: 10}, noopLogger())

	s.RunOnce(context.Background())

	assert.Equal(t, 0, approver.pending)
	assert.Equal(t, 3, approver.Calls())
	assert.Equal(t, []string{"sweep", "sweep", "sweep"}, approver.sources)
}

func TestRunOnceSkipsWhenNotLeader(t *testing.T) {
	approver := &fakeApprover{pending: 5}
	s := NewSweeper(approver, busyLocker{}, Config{BatchSize: 10}, noopLogger())

	s.RunOnce(context.Background())

	assert.Equal(t, 0, approver.Calls())
	assert.Equal(t, 5, approver.pending)
}

func TestRunOnceStopsOnError(t *testing.T) {
	approver := &fakeApprover{pending: 50, err: errors.New("db down")}
	s := NewSweeper(approver, lock.NewLocal(), Config{BatchSize: 10}, noopLogger())

	s.RunOnce(context.Background())

	assert.Equal(t, 1, approver.Calls())
}

func TestStartStop(t *testing.T) {
	approver := &fakeApprover{pending: 3}
	s := NewSweeper(approver, lock.NewLocal(), Config{Interval: time.Hour}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSweeperAlreadyRunning)

	require.Eventually(t, func() bool { return approver.Calls() >= 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	assert.Equal(t, 0, approver.pending)
}
