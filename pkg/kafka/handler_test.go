package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeSettler struct {
	sales          []models.Sale
	refunds        []string
	payouts        []uuid.UUID
	intermediaries []models.Intermediary
	err            error
}

func (f *fakeSettler) ProcessSale(ctx context.Context, sale models.Sale) (*models.SaleSettlement, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sales = append(f.sales, sale)
	return &models.SaleSettlement{Sale: sale}, nil
}

func (f *fakeSettler) ProcessRefund(ctx context.Context, saleID, reason string) (*models.RefundResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.refunds = append(f.refunds, saleID)
	return &models.RefundResult{SaleID: saleID}, nil
}

func (f *fakeSettler) ConfirmPayout(ctx context.Context, id uuid.UUID, payoutRef string, paidAt time.Time) (*models.CommissionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payouts = append(f.payouts, id)
	return &models.CommissionRecord{ID: id}, nil
}

func (f *fakeSettler) RegisterIntermediary(ctx context.Context, m models.Intermediary) (*models.Intermediary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.intermediaries = append(f.intermediaries, m)
	return &m, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func received(value string) *ReceivedMessage {
	return &ReceivedMessage{Topic: "settlement.commands", Value: []byte(value)}
}

func TestHandleDispatchesByType(t *testing.T) {
	settler := &fakeSettler{}
	h := NewSettlementHandler(settler, noopLogger())
	ctx := context.Background()
	commissionID := uuid.New()

	require.NoError(t, h.Handle(ctx, received(`{"type":"sale.completed","data":{"sale_id":"S-1","buyer_id":"b","property_series_id":"s","tier":"gold","amount":"100.00","occurred_at":"2024-03-01T12:00:00Z"}}`)))
	require.NoError(t, h.Handle(ctx, received(`{"type":"refund.requested","data":{"sale_id":"S-1","reason":"buyer cancelled"}}`)))
	require.NoError(t, h.Handle(ctx, received(`{"type":"payout.confirmed","data":{"commission_id":"`+commissionID.String()+`","payout_ref":"P-1"}}`)))
	require.NoError(t, h.Handle(ctx, received(`{"type":"intermediary.upserted","data":{"id":"A","sponsor_id":"B"}}`)))

	require.Len(t, settler.sales, 1)
	assert.Equal(t, "S-1", settler.sales[0].SaleID)
	assert.Equal(t, []string{"S-1"}, settler.refunds)
	assert.Equal(t, []uuid.UUID{commissionID}, settler.payouts)
	require.Len(t, settler.intermediaries, 1)
	assert.True(t, settler.intermediaries[0].Active)
}

func TestHandleRejectsInvalidPayload(t *testing.T) {
	settler := &fakeSettler{}
	h := NewSettlementHandler(settler, noopLogger())

	err := h.Handle(context.Background(), received(`{"type":"refund.requested","data":{"sale_id":"S-1"}}`))
	assert.True(t, apperrors.IsInputError(err))
	assert.Empty(t, settler.refunds)
}

func TestHandlePassesEngineErrorsThrough(t *testing.T) {
	settler := &fakeSettler{err: &apperrors.ManualReconciliationRequiredError{SaleID: "S-1", Reason: "commission already paid out"}}
	h := NewSettlementHandler(settler, noopLogger())

	err := h.Handle(context.Background(), received(`{"type":"refund.requested","data":{"sale_id":"S-1","reason":"chargeback"}}`))
	assert.True(t, apperrors.IsManualReconciliation(err))
}
