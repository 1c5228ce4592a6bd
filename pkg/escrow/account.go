package escrow

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

type Store interface {
	repositories.EscrowRepo
	repositories.SeriesRepo
}

// Account holds buyer funds per property series. Held funds are released
// together once the series sells its unit target and may be refunded only
// before that. Every method must run inside the caller's transaction.
type Account struct {
	store             Store
	logger            ectologger.Logger
	defaultUnitTarget int
}

// NewAccount creates an Account. When defaultUnitTarget is positive, deposits
// into an unknown series register it with that target.
func NewAccount(store Store, logger ectologger.Logger, defaultUnitTarget int) *Account {
	return &Account{store: store, logger: logger, defaultUnitTarget: defaultUnitTarget}
}

// RegisterSeries creates a series or changes the unit target of an open one.
func (a *Account) RegisterSeries(ctx context.Context, seriesID string, unitTarget int, now time.Time) (*models.PropertySeries, error) {
	ctx, span := tracing.StartSpan(ctx, "escrow.Account.RegisterSeries")
	defer span.End()

	if strings.TrimSpace(seriesID) == "" {
		return nil, apperrors.NewInvalidInput("series_id", "is required")
	}
	if unitTarget <= 0 {
		return nil, apperrors.NewInvalidInput("unit_target", "must be greater than zero")
	}

	series, err := a.store.GetSeries(ctx, seriesID, true)
	if apperrors.IsNotFound(err) {
		series = &models.PropertySeries{
			SeriesID:   seriesID,
			UnitTarget: unitTarget,
			Status:     models.SeriesOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := a.store.CreateSeries(ctx, series); err != nil {
			return nil, err
		}
		return series, nil
	}
	if err != nil {
		return nil, err
	}

	if series.Status == models.SeriesReleased {
		return nil, &apperrors.SeriesClosedError{SeriesID: seriesID}
	}
	if unitTarget < series.UnitsSold {
		return nil, apperrors.NewInvalidInput("unit_target", "%d is below the %d units already sold", unitTarget, series.UnitsSold)
	}

	series.UnitTarget = unitTarget
	series.UpdatedAt = now
	if err := a.store.UpdateSeries(ctx, series); err != nil {
		return nil, err
	}
	return series, nil
}

// Deposit holds the sale's funds and counts its units toward the series target.
func (a *Account) Deposit(ctx context.Context, sale models.Sale, now time.Time) (*models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "escrow.Account.Deposit")
	defer span.End()

	if sale.Quantity <= 0 {
		return nil, apperrors.NewInvalidInput("quantity", "must be greater than zero")
	}

	series, err := a.lockSeries(ctx, sale.PropertySeriesID, now)
	if err != nil {
		return nil, err
	}
	if series.Status == models.SeriesReleased {
		return nil, &apperrors.SeriesClosedError{SeriesID: series.SeriesID}
	}
	if sale.Quantity > series.Remaining() {
		return nil, &apperrors.SeriesCapacityError{
			SeriesID:  series.SeriesID,
			Requested: sale.Quantity,
			Remaining: series.Remaining(),
		}
	}

	rec := &models.EscrowRecord{
		ID:               uuid.New(),
		SaleID:           sale.SaleID,
		BuyerID:          sale.BuyerID,
		PropertySeriesID: series.SeriesID,
		Quantity:         sale.Quantity,
		AmountMXN:        sale.SaleAmount,
		AmountUSD:        sale.AmountUSD,
		Season:           sale.Season,
		Status:           models.EscrowHeld,
		HeldAt:           now,
	}
	if err := a.store.CreateEscrowRecord(ctx, rec); err != nil {
		return nil, err
	}

	series.UnitsSold += sale.Quantity
	series.UpdatedAt = now
	if err := a.store.UpdateSeries(ctx, series); err != nil {
		return nil, err
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"series_id":   series.SeriesID,
		"sale_id":     sale.SaleID,
		"units_sold":  series.UnitsSold,
		"unit_target": series.UnitTarget,
	}).Debug("escrow deposit held")

	return rec, nil
}

// EvaluateThreshold releases every held record of the series once units_sold
// reaches unit_target. Below target, or when already released, it returns nothing.
func (a *Account) EvaluateThreshold(ctx context.Context, seriesID string, now time.Time, actor string) ([]models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "escrow.Account.EvaluateThreshold")
	defer span.End()

	series, err := a.store.GetSeries(ctx, seriesID, true)
	if err != nil {
		return nil, err
	}
	if series.Status == models.SeriesReleased || !series.ThresholdReached() {
		return nil, nil
	}
	return a.release(ctx, series, now, actor)
}

// ReleaseSeries is the operator path to EvaluateThreshold. It fails instead of
// doing nothing so the caller learns why no funds moved.
func (a *Account) ReleaseSeries(ctx context.Context, seriesID string, now time.Time, actor string) ([]models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "escrow.Account.ReleaseSeries")
	defer span.End()

	series, err := a.store.GetSeries(ctx, seriesID, true)
	if err != nil {
		return nil, err
	}
	if series.Status == models.SeriesReleased {
		return nil, &apperrors.SeriesClosedError{SeriesID: seriesID}
	}
	if !series.ThresholdReached() {
		return nil, &apperrors.ThresholdNotReachedError{
			SeriesID:   seriesID,
			UnitsSold:  series.UnitsSold,
			UnitTarget: series.UnitTarget,
		}
	}
	return a.release(ctx, series, now, actor)
}

func (a *Account) release(ctx context.Context, series *models.PropertySeries, now time.Time, actor string) ([]models.EscrowRecord, error) {
	released, err := a.store.ReleaseHeldEscrow(ctx, series.SeriesID, now, actor)
	if err != nil {
		return nil, err
	}

	series.Status = models.SeriesReleased
	series.ReleasedAt = &now
	series.UpdatedAt = now
	if err := a.store.UpdateSeries(ctx, series); err != nil {
		return nil, err
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"series_id":   series.SeriesID,
		"released":    len(released),
		"units_sold":  series.UnitsSold,
		"unit_target": series.UnitTarget,
		"actor":       actor,
	}).Info("series reached unit target, escrow released")

	return released, nil
}

// Refund returns a held record's funds to the buyer and frees its units.
func (a *Account) Refund(ctx context.Context, recordID uuid.UUID, reason string, actor string, now time.Time) (*models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "escrow.Account.Refund")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewInvalidInput("reason", "is required")
	}

	// Series first, then record: the same order Deposit takes its locks in.
	peek, err := a.store.GetEscrowRecord(ctx, recordID, false)
	if err != nil {
		return nil, err
	}
	series, err := a.store.GetSeries(ctx, peek.PropertySeriesID, true)
	if err != nil {
		return nil, err
	}
	rec, err := a.store.GetEscrowRecord(ctx, recordID, true)
	if err != nil {
		return nil, err
	}

	if rec.Status != models.EscrowHeld {
		return nil, &apperrors.AlreadyTerminalError{RecordID: rec.ID.String(), Status: string(rec.Status)}
	}
	if series.Status == models.SeriesReleased || series.ThresholdReached() {
		return nil, &apperrors.SeriesClosedError{SeriesID: series.SeriesID}
	}

	rec.Status = models.EscrowRefunded
	rec.RefundedAt = &now
	rec.RefundedBy = actor
	rec.RefundReason = reason
	ok, err := a.store.UpdateEscrowStatus(ctx, rec, models.EscrowHeld)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperrors.ConcurrentModificationError{RecordID: rec.ID.String()}
	}

	series.UnitsSold -= rec.Quantity
	series.UpdatedAt = now
	if err := a.store.UpdateSeries(ctx, series); err != nil {
		return nil, err
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"series_id":  series.SeriesID,
		"record_id":  rec.ID.String(),
		"units_sold": series.UnitsSold,
		"actor":      actor,
	}).Info("escrow refunded")

	return rec, nil
}

// Snapshot summarizes a series and its records. The series row is locked
// first, as Deposit and Refund do, so inside a transaction the records match
// units_sold.
func (a *Account) Snapshot(ctx context.Context, seriesID string) (*models.SeriesSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "escrow.Account.Snapshot")
	defer span.End()

	series, err := a.store.GetSeries(ctx, seriesID, true)
	if err != nil {
		return nil, err
	}
	records, err := a.store.ListEscrowRecordsBySeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	snap := &models.SeriesSnapshot{Series: *series, Records: records}
	for _, r := range records {
		switch r.Status {
		case models.EscrowHeld:
			snap.HeldCount++
			snap.HeldAmount += r.AmountMXN
		case models.EscrowReleased:
			snap.ReleasedCount++
			snap.ReleasedAmount += r.AmountMXN
		case models.EscrowRefunded:
			snap.RefundedCount++
		}
	}
	return snap, nil
}

func (a *Account) lockSeries(ctx context.Context, seriesID string, now time.Time) (*models.PropertySeries, error) {
	series, err := a.store.GetSeries(ctx, seriesID, true)
	if apperrors.IsNotFound(err) && a.defaultUnitTarget > 0 {
		a.logger.WithContext(ctx).WithFields(map[string]any{
			"series_id":   seriesID,
			"unit_target": a.defaultUnitTarget,
		}).Info("registering unknown series with default unit target")
		return a.RegisterSeries(ctx, seriesID, a.defaultUnitTarget, now)
	}
	return series, err
}
