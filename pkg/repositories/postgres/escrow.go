package postgres

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

var escrowStruct = database.NewStruct(new(models.EscrowRecord))

var escrowColumns = []string{
	"id", "sale_id", "buyer_id", "property_series_id", "quantity", "amount_mxn", "amount_usd", "season",
	"status", "held_at", "released_at", "released_by", "refunded_at", "refunded_by", "refund_reason",
}

func (s *Store) CreateEscrowRecord(ctx context.Context, rec *models.EscrowRecord) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateEscrowRecord")
	defer span.End()

	ib := escrowStruct.InsertInto(escrowTable, rec)
	query, args := ib.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "create escrow record", err, map[string]any{
			"sale_id":   rec.SaleID,
			"series_id": rec.PropertySeriesID,
		})
	}

	s.logger.WithContext(ctx).WithField("escrow_id", rec.ID.String()).Debugf("Created %s", escrowTable)
	return nil
}

func (s *Store) GetEscrowRecord(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetEscrowRecord")
	defer span.End()

	sb := escrowStruct.SelectFrom(escrowTable)
	sb.Where(sb.Equal("id", id))
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var rec models.EscrowRecord
	if err := s.get(ctx, &rec, "escrow record", id.String(), query, args...); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetEscrowRecordBySale(ctx context.Context, saleID string, forUpdate bool) (*models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetEscrowRecordBySale")
	defer span.End()

	sb := escrowStruct.SelectFrom(escrowTable)
	sb.Where(sb.Equal("sale_id", saleID))
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var rec models.EscrowRecord
	if err := s.get(ctx, &rec, "escrow record for sale", saleID, query, args...); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListEscrowRecordsBySeries(ctx context.Context, seriesID string) ([]models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListEscrowRecordsBySeries")
	defer span.End()

	sb := escrowStruct.SelectFrom(escrowTable)
	sb.Where(sb.Equal("property_series_id", seriesID)).OrderBy("held_at", "sale_id")

	query, args := sb.Build()
	records := []models.EscrowRecord{}
	if err := s.conn(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		return nil, s.failed(ctx, "list escrow records", err, map[string]any{"series_id": seriesID})
	}
	return records, nil
}

// ReleaseHeldEscrow flips every held record of the series in a single
// statement so a release is never partially applied.
func (s *Store) ReleaseHeldEscrow(ctx context.Context, seriesID string, at time.Time, actor string) ([]models.EscrowRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ReleaseHeldEscrow")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(escrowTable).Set(
		ub.Assign("status", models.EscrowReleased),
		ub.Assign("released_at", at),
		ub.Assign("released_by", actor),
	).Where(
		ub.Equal("property_series_id", seriesID),
		ub.Equal("status", models.EscrowHeld),
	)
	ub.Returning(escrowColumns...)

	query, args := ub.Build()
	released := []models.EscrowRecord{}
	if err := s.conn(ctx).SelectContext(ctx, &released, query, args...); err != nil {
		return nil, s.failed(ctx, "release held escrow", err, map[string]any{"series_id": seriesID})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"series_id": seriesID,
		"released":  len(released),
	}).Debugf("Released %s", escrowTable)
	return released, nil
}

func (s *Store) UpdateEscrowStatus(ctx context.Context, rec *models.EscrowRecord, from models.EscrowStatus) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.UpdateEscrowStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(escrowTable).Set(
		ub.Assign("status", rec.Status),
		ub.Assign("released_at", rec.ReleasedAt),
		ub.Assign("released_by", rec.ReleasedBy),
		ub.Assign("refunded_at", rec.RefundedAt),
		ub.Assign("refunded_by", rec.RefundedBy),
		ub.Assign("refund_reason", rec.RefundReason),
	).Where(ub.Equal("id", rec.ID), ub.Equal("status", from))

	query, args := ub.Build()
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, s.failed(ctx, "update escrow status", err, map[string]any{"escrow_id": rec.ID.String()})
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.failed(ctx, "update escrow status", err, map[string]any{"escrow_id": rec.ID.String()})
	}
	return n == 1, nil
}
