package postgres

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var seriesStruct = database.NewStruct(new(models.PropertySeries))

func (s *Store) CreateSeries(ctx context.Context, series *models.PropertySeries) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateSeries")
	defer span.End()

	ib := seriesStruct.InsertInto(seriesTable, series)
	query, args := ib.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "create series", err, map[string]any{"series_id": series.SeriesID})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"series_id":   series.SeriesID,
		"unit_target": series.UnitTarget,
	}).Debugf("Created %s", seriesTable)
	return nil
}

func (s *Store) GetSeries(ctx context.Context, seriesID string, forUpdate bool) (*models.PropertySeries, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetSeries")
	defer span.End()

	sb := seriesStruct.SelectFrom(seriesTable)
	sb.Where(sb.Equal("series_id", seriesID))
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var series models.PropertySeries
	if err := s.get(ctx, &series, "series", seriesID, query, args...); err != nil {
		return nil, err
	}
	return &series, nil
}

func (s *Store) UpdateSeries(ctx context.Context, series *models.PropertySeries) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.UpdateSeries")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(seriesTable).Set(
		ub.Assign("unit_target", series.UnitTarget),
		ub.Assign("units_sold", series.UnitsSold),
		ub.Assign("status", series.Status),
		ub.Assign("released_at", series.ReleasedAt),
		ub.Assign("updated_at", series.UpdatedAt),
	).Where(ub.Equal("series_id", series.SeriesID))

	query, args := ub.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "update series", err, map[string]any{"series_id": series.SeriesID})
	}
	return nil
}
