package postgres

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var intermediaryStruct = database.NewStruct(new(models.Intermediary))

func (s *Store) UpsertIntermediary(ctx context.Context, m *models.Intermediary) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.UpsertIntermediary")
	defer span.End()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	ib := intermediaryStruct.InsertInto(intermediariesTable, m)
	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("sponsor_id", database.Excluded("sponsor_id")),
		ub.Assign("referral_code", database.Excluded("referral_code")),
		ub.Assign("active", database.Excluded("active")),
	)

	query, args := ib.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "upsert intermediary", err, map[string]any{"intermediary_id": m.ID})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"intermediary_id": m.ID,
		"sponsor_id":      m.SponsorID,
	}).Info("Upserted intermediary")
	return nil
}

func (s *Store) GetIntermediary(ctx context.Context, id string) (*models.Intermediary, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetIntermediary")
	defer span.End()

	sb := intermediaryStruct.SelectFrom(intermediariesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var m models.Intermediary
	if err := s.get(ctx, &m, "intermediary", id, query, args...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetIntermediaryByCode(ctx context.Context, code string) (*models.Intermediary, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetIntermediaryByCode")
	defer span.End()

	sb := intermediaryStruct.SelectFrom(intermediariesTable)
	sb.Where(sb.Equal("referral_code", code))

	query, args := sb.Build()
	var m models.Intermediary
	if err := s.get(ctx, &m, "referral code", code, query, args...); err != nil {
		return nil, err
	}
	return &m, nil
}
