package kafka

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Settler is the part of the settlement engine driven by commands.
type Settler interface {
	ProcessSale(ctx context.Context, sale models.Sale) (*models.SaleSettlement, error)
	ProcessRefund(ctx context.Context, saleID, reason string) (*models.RefundResult, error)
	ConfirmPayout(ctx context.Context, commissionID uuid.UUID, payoutRef string, paidAt time.Time) (*models.CommissionRecord, error)
	RegisterIntermediary(ctx context.Context, m models.Intermediary) (*models.Intermediary, error)
}

// SettlementHandler turns command envelopes into engine calls.
type SettlementHandler struct {
	settler Settler
	logger  ectologger.Logger
}

func NewSettlementHandler(settler Settler, logger ectologger.Logger) *SettlementHandler {
	return &SettlementHandler{settler: settler, logger: logger}
}

// Handle satisfies MessageHandler. Replays of an applied command succeed,
// so redelivery after a crash between apply and commit is harmless.
func (h *SettlementHandler) Handle(ctx context.Context, msg *ReceivedMessage) error {
	ctx, span := tracing.StartSpan(ctx, "SettlementHandler.Handle")
	defer span.End()

	env, err := ParseEnvelope(msg.Value)
	if err != nil {
		return err
	}

	logger := h.logger.WithContext(ctx).WithFields(map[string]any{
		"type":      string(env.Type),
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	switch env.Type {
	case SaleCompleted:
		m, err := Decode[SaleCompletedMessage](env)
		if err != nil {
			return err
		}
		sale, err := m.ToSale()
		if err != nil {
			return err
		}
		result, err := h.settler.ProcessSale(ctx, sale)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]any{
			"sale_id":  result.Sale.SaleID,
			"replayed": result.Replayed,
		}).Info("sale command applied")

	case RefundRequested:
		m, err := Decode[RefundRequestedMessage](env)
		if err != nil {
			return err
		}
		result, err := h.settler.ProcessRefund(ctx, m.SaleID, m.Reason)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]any{
			"sale_id":          result.SaleID,
			"already_refunded": result.AlreadyRefunded,
		}).Info("refund command applied")

	case PayoutConfirmed:
		m, err := Decode[PayoutConfirmedMessage](env)
		if err != nil {
			return err
		}
		rec, err := h.settler.ConfirmPayout(ctx, m.ID(), m.PayoutRef, m.PaidAt)
		if err != nil {
			return err
		}
		logger.WithField("commission_id", rec.ID.String()).Info("payout command applied")

	case IntermediaryUpserted:
		m, err := Decode[IntermediaryUpsertedMessage](env)
		if err != nil {
			return err
		}
		if _, err := h.settler.RegisterIntermediary(ctx, m.ToIntermediary()); err != nil {
			return err
		}
		logger.WithField("intermediary_id", m.ID).Info("intermediary command applied")
	}

	return nil
}
