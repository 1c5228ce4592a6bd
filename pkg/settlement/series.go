package settlement

import (
	"context"
	"strings"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RegisterSeries creates a property series or changes its unit target.
// Lowering the target to units already sold releases the series at once.
func (e *Engine) RegisterSeries(ctx context.Context, seriesID string, unitTarget int) (*models.SeriesSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.RegisterSeries")
	defer span.End()

	if strings.TrimSpace(seriesID) == "" {
		return nil, apperrors.NewInvalidInput("series_id", "is required")
	}
	if unitTarget <= 0 {
		return nil, apperrors.NewInvalidInput("unit_target", "must be greater than zero")
	}

	actor := actorOf(ctx)
	now := e.now()
	var released []models.EscrowRecord
	err := e.withKeys(ctx, []string{lock.SeriesKey(seriesID)}, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context) error {
			series, err := e.escrow.RegisterSeries(ctx, seriesID, unitTarget, now)
			if err != nil {
				return err
			}
			released, err = e.escrow.EvaluateThreshold(ctx, seriesID, now, actor)
			if err != nil {
				return err
			}
			entries := []models.AuditEntry{audit("series", seriesID, models.AuditSeriesRegistered, actor, "", now, map[string]any{
				"unit_target": series.UnitTarget,
				"units_sold":  series.UnitsSold,
			})}
			if len(released) > 0 {
				entries = append(entries, audit("series", seriesID, models.AuditEscrowReleased, actor, "unit target reached", now, map[string]any{
					"released": len(released),
				}))
			}
			return e.store.AppendAudit(ctx, entries...)
		})
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("series_id", seriesID).Warn("failed to register series")
		return nil, err
	}

	evts := []events.Event{events.New(events.SeriesRegistered, seriesID, actor, now, map[string]any{
		"series_id":   seriesID,
		"unit_target": unitTarget,
	})}
	if len(released) > 0 {
		metrics.RecordEscrow("released", len(released))
		evts = append(evts, releasedEvent(seriesID, actor, now, released))
	}
	e.publish(ctx, evts...)

	return e.snapshot(ctx, seriesID)
}

// ReleaseSeries releases a series that reached its target. It fails with
// SeriesClosed when already released and ThresholdNotReached below target.
func (e *Engine) ReleaseSeries(ctx context.Context, seriesID string) ([]models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.ReleaseSeries")
	defer span.End()

	actor := actorOf(ctx)
	now := e.now()
	var released []models.EscrowRecord
	err := e.withKeys(ctx, []string{lock.SeriesKey(seriesID)}, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context) error {
			var err error
			released, err = e.escrow.ReleaseSeries(ctx, seriesID, now, actor)
			if err != nil {
				return err
			}
			return e.store.AppendAudit(ctx, audit("series", seriesID, models.AuditEscrowReleased, actor, "operator release", now, map[string]any{
				"released": len(released),
			}))
		})
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("series_id", seriesID).Warn("failed to release series")
		return nil, err
	}

	metrics.RecordEscrow("released", len(released))
	e.publish(ctx, releasedEvent(seriesID, actor, now, released))
	return released, nil
}

// GetEscrowStatus returns the series counters and every escrow record in it.
func (e *Engine) GetEscrowStatus(ctx context.Context, seriesID string) (*models.SeriesSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.GetEscrowStatus")
	defer span.End()

	return e.snapshot(ctx, seriesID)
}

// snapshot reads the series and its records in one transaction so the counters
// always match the records.
func (e *Engine) snapshot(ctx context.Context, seriesID string) (*models.SeriesSnapshot, error) {
	var snap *models.SeriesSnapshot
	err := e.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		snap, err = e.escrow.Snapshot(ctx, seriesID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetCommissions lists a beneficiary's commission records, oldest first.
func (e *Engine) GetCommissions(ctx context.Context, beneficiaryID string) ([]models.CommissionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.GetCommissions")
	defer span.End()

	if strings.TrimSpace(beneficiaryID) == "" {
		return nil, apperrors.NewInvalidInput("beneficiary_id", "is required")
	}
	return e.store.ListCommissionsByBeneficiary(ctx, beneficiaryID)
}

// RegisterIntermediary creates or updates a node of the referral network.
func (e *Engine) RegisterIntermediary(ctx context.Context, m models.Intermediary) (*models.Intermediary, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.RegisterIntermediary")
	defer span.End()

	if strings.TrimSpace(m.ID) == "" {
		return nil, apperrors.NewInvalidInput("id", "is required")
	}
	if m.SponsorID == m.ID {
		return nil, apperrors.NewInvalidInput("sponsor_id", "must differ from id")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = e.now()
	}
	if err := e.store.UpsertIntermediary(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAudit returns the audit trail of one entity.
func (e *Engine) GetAudit(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.GetAudit")
	defer span.End()

	return e.store.ListAudit(ctx, entityType, entityID)
}
