package postgres

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

var commissionStruct = database.NewStruct(new(models.CommissionRecord))

func (s *Store) CreateCommissions(ctx context.Context, records []models.CommissionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateCommissions")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	values := make([]any, len(records))
	for i := range records {
		values[i] = &records[i]
	}
	ib := commissionStruct.InsertInto(commissionsTable, values...)
	query, args := ib.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "create commissions", err, map[string]any{"sale_id": records[0].SaleID})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"sale_id": records[0].SaleID,
		"count":   len(records),
	}).Debugf("Created %s", commissionsTable)
	return nil
}

func (s *Store) GetCommission(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetCommission")
	defer span.End()

	sb := commissionStruct.SelectFrom(commissionsTable)
	sb.Where(sb.Equal("id", id))
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var rec models.CommissionRecord
	if err := s.get(ctx, &rec, "commission", id.String(), query, args...); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListCommissionsBySale(ctx context.Context, saleID string, forUpdate bool) ([]models.CommissionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListCommissionsBySale")
	defer span.End()

	sb := commissionStruct.SelectFrom(commissionsTable)
	sb.Where(sb.Equal("sale_id", saleID)).OrderBy("level")
	if forUpdate {
		sb.ForUpdate()
	}
	return s.selectCommissions(ctx, sb, map[string]any{"sale_id": saleID})
}

func (s *Store) ListCommissionsByBeneficiary(ctx context.Context, beneficiaryID string) ([]models.CommissionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListCommissionsByBeneficiary")
	defer span.End()

	sb := commissionStruct.SelectFrom(commissionsTable)
	sb.Where(sb.Equal("beneficiary_id", beneficiaryID)).OrderBy("created_at", "id")
	return s.selectCommissions(ctx, sb, map[string]any{"beneficiary_id": beneficiaryID})
}

func (s *Store) ListMaturedCommissions(ctx context.Context, now time.Time, limit int) ([]models.CommissionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListMaturedCommissions")
	defer span.End()

	sb := commissionStruct.SelectFrom(commissionsTable)
	sb.Where(
		sb.Equal("status", models.CommissionPending),
		sb.LessEqualThan("hold_until", now),
	).OrderBy("hold_until", "id")
	if limit > 0 {
		sb.Limit(limit)
	}
	return s.selectCommissions(ctx, sb, map[string]any{"now": now})
}

func (s *Store) selectCommissions(ctx context.Context, sb *database.SelectBuilder, fields map[string]any) ([]models.CommissionRecord, error) {
	query, args := sb.Build()
	records := []models.CommissionRecord{}
	if err := s.conn(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		return nil, s.failed(ctx, "list commissions", err, fields)
	}
	return records, nil
}

func (s *Store) UpdateCommissionStatus(ctx context.Context, rec *models.CommissionRecord, from models.CommissionStatus) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.UpdateCommissionStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(commissionsTable).Set(
		ub.Assign("status", rec.Status),
		ub.Assign("approved_at", rec.ApprovedAt),
		ub.Assign("paid_at", rec.PaidAt),
		ub.Assign("payout_ref", rec.PayoutRef),
		ub.Assign("reversed_at", rec.ReversedAt),
		ub.Assign("reversal_reason", rec.ReversalReason),
		ub.Assign("updated_at", rec.UpdatedAt),
	).Where(ub.Equal("id", rec.ID), ub.Equal("status", from))

	query, args := ub.Build()
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, s.failed(ctx, "update commission status", err, map[string]any{
			"commission_id": rec.ID.String(),
			"to":            rec.Status,
		})
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.failed(ctx, "update commission status", err, map[string]any{"commission_id": rec.ID.String()})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"commission_id": rec.ID.String(),
		"from":          from,
		"to":            rec.Status,
		"updated":       n == 1,
	}).Debugf("Updated %s", commissionsTable)
	return n == 1, nil
}
