package postgres

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var saleStruct = database.NewStruct(new(models.Sale))

func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateSale")
	defer span.End()

	ib := saleStruct.InsertInto(salesTable, sale)
	query, args := ib.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "create sale", err, map[string]any{"sale_id": sale.SaleID})
	}

	s.logger.WithContext(ctx).WithField("sale_id", sale.SaleID).Debugf("Created %s", salesTable)
	return nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetSale")
	defer span.End()

	sb := saleStruct.SelectFrom(salesTable)
	sb.Where(sb.Equal("sale_id", saleID))

	query, args := sb.Build()
	var sale models.Sale
	if err := s.get(ctx, &sale, "sale", saleID, query, args...); err != nil {
		return nil, err
	}
	return &sale, nil
}
