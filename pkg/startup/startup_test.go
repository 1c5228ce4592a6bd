package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartupOrder(t *testing.T) {
	var events []string
	dep := func(name string, requires ...string) *Func {
		return &Func{
			Name:      name,
			Requires:  requires,
			StartFunc: func(ctx context.Context) error { events = append(events, "start:"+name); return nil },
			StopFunc:  func(ctx context.Context) error { events = append(events, "stop:"+name); return nil },
		}
	}

	s := NewStartup(noopLogger(), 1)
	s.AddDependency(dep("http", "database", "redis"))
	s.AddDependency(dep("redis"))
	s.AddDependency(dep("database"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:redis", "start:http"}, events)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:http", "stop:redis", "stop:database"}, events)
}

func TestStartupRetries(t *testing.T) {
	calls := 0
	s := NewStartup(noopLogger(), 3)
	s.unit = time.Millisecond
	s.AddDependency(&Func{Name: "flaky", StartFunc: func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartupGivesUp(t *testing.T) {
	s := NewStartup(noopLogger(), 2)
	s.unit = time.Millisecond
	s.AddDependency(&Func{Name: "down", StartFunc: func(ctx context.Context) error { return errors.New("refused") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("down"))
}

func TestStartupMissingDependency(t *testing.T) {
	s := NewStartup(noopLogger(), 1)
	s.AddDependency(&Func{Name: "http", Requires: []string{"database"}})
	assert.Error(t, s.Start(context.Background()))
}
