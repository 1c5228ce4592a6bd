package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/commission"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/escrow"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/hold"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ratetable"
	"github.com/Ramsey-B/fern/pkg/referral"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/google/uuid"
)

type Options struct {
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// DefaultUnitTarget registers unknown series on first deposit when positive.
	DefaultUnitTarget int
}

// Engine is the only writer of commission and escrow state. Every write runs
// under per-sale and per-series locks inside a single transaction, and
// events are published only after that transaction commits.
type Engine struct {
	store     repositories.Store
	locker    lock.Locker
	rates     *ratetable.Registry
	resolver  *referral.Resolver
	calc      *commission.Calculator
	holds     *hold.Scheduler
	escrow    *escrow.Account
	publisher events.Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewEngine(store repositories.Store, locker lock.Locker, rates *ratetable.Registry, publisher events.Publisher, logger ectologger.Logger, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		store:     store,
		locker:    locker,
		rates:     rates,
		resolver:  referral.NewResolver(store, logger),
		calc:      commission.NewCalculator(),
		holds:     hold.NewScheduler(),
		escrow:    escrow.NewAccount(store, logger, opts.DefaultUnitTarget),
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return now().UTC().Truncate(time.Microsecond) },
	}
}

// withKeys acquires keys in order and runs fn while holding all of them.
// Errors from fn are returned as-is; any other failure (lock backend, wait
// timeout, cancelled ctx) is a PersistenceError so callers can retry.
func (e *Engine) withKeys(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	var ran bool
	var fnErr error
	err := e.lockAll(ctx, keys, func(ctx context.Context) error {
		ran = true
		fnErr = fn(ctx)
		return fnErr
	})
	if err == nil || (ran && errors.Is(err, fnErr)) {
		return err
	}
	return apperrors.NewPersistenceError("acquire settlement lock", err)
}

func (e *Engine) lockAll(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return e.locker.WithLock(ctx, keys[0], func(ctx context.Context) error {
		return e.lockAll(ctx, keys[1:], fn)
	})
}

func (e *Engine) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, evts...); err != nil {
		types := make([]string, len(evts))
		for i, ev := range evts {
			types[i] = string(ev.Type)
		}
		e.logger.WithContext(ctx).WithError(err).WithField("event_types", types).Error("failed to publish settlement events")
	}
}

func audit(entityType, entityID string, action models.AuditAction, actor, reason string, at time.Time, details map[string]any) models.AuditEntry {
	return models.AuditEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Reason:     reason,
		Details:    details,
		OccurredAt: at,
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.IsInputError(err):
		return "rejected"
	case apperrors.IsInvariantError(err):
		return "conflict"
	default:
		return "error"
	}
}

func actorOf(ctx context.Context) string {
	return fctx.GetActor(ctx)
}
