package settlement

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

// ProcessRefund reverses every unpaid commission of a sale and returns its
// escrow to the buyer. Nothing is changed when any commission is already paid
// or the escrow was released; the caller gets ManualReconciliationRequired.
func (e *Engine) ProcessRefund(ctx context.Context, saleID, reason string) (*models.RefundResult, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.ProcessRefund")
	defer span.End()

	if strings.TrimSpace(saleID) == "" {
		return nil, apperrors.NewInvalidInput("sale_id", "is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewInvalidInput("reason", "is required")
	}

	sale, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return e.refund(ctx, *sale, reason, nil)
}

// RefundEscrow refunds the sale behind a single held escrow record. Records
// already released or refunded fail with AlreadyTerminal.
func (e *Engine) RefundEscrow(ctx context.Context, recordID uuid.UUID, reason string) (*models.RefundResult, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.RefundEscrow")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewInvalidInput("reason", "is required")
	}

	rec, err := e.store.GetEscrowRecord(ctx, recordID, false)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.EscrowHeld {
		return nil, &apperrors.AlreadyTerminalError{RecordID: rec.ID.String(), Status: string(rec.Status)}
	}
	sale, err := e.store.GetSale(ctx, rec.SaleID)
	if err != nil {
		return nil, err
	}

	// Re-checked under the locks: a concurrent refund or release may have won.
	requireHeld := func(ctx context.Context) error {
		current, err := e.store.GetEscrowRecord(ctx, recordID, false)
		if err != nil {
			return err
		}
		if current.Status != models.EscrowHeld {
			return &apperrors.AlreadyTerminalError{RecordID: current.ID.String(), Status: string(current.Status)}
		}
		return nil
	}
	return e.refund(ctx, *sale, reason, requireHeld)
}

func (e *Engine) refund(ctx context.Context, sale models.Sale, reason string, precheck func(ctx context.Context) error) (*models.RefundResult, error) {
	start := time.Now()
	fields := map[string]any{
		"sale_id":   sale.SaleID,
		"series_id": sale.PropertySeriesID,
		"reason":    reason,
	}

	var result *models.RefundResult
	keys := []string{lock.SaleKey(sale.SaleID), lock.SeriesKey(sale.PropertySeriesID)}
	err := e.withKeys(ctx, keys, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context) error {
			if precheck != nil {
				if err := precheck(ctx); err != nil {
					return err
				}
			}
			var err error
			result, err = e.refundSale(ctx, sale, reason)
			return err
		})
	})
	metrics.RecordOperation("refund", time.Since(start).Seconds())

	actor := actorOf(ctx)
	if err != nil {
		if apperrors.IsManualReconciliation(err) {
			metrics.RecordReconciliationRequired()
			e.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("refund requires manual reconciliation")
			e.publish(ctx, events.New(events.ReconciliationRequired, sale.SaleID, actor, e.now(), err))
			return nil, err
		}
		e.logger.WithContext(ctx).WithError(err).WithFields(fields).Warn("refund failed")
		return nil, err
	}

	if result.AlreadyRefunded {
		e.logger.WithContext(ctx).WithFields(fields).Info("sale already refunded")
		return result, nil
	}

	metrics.RecordCommissionTransition(string(models.CommissionReversed), len(result.Reversed))
	if result.Escrow != nil && result.Escrow.Status == models.EscrowRefunded {
		metrics.RecordEscrow("refunded", 1)
	}
	fields["reversed"] = len(result.Reversed)
	e.logger.WithContext(ctx).WithFields(fields).Info("sale refunded")
	e.publish(ctx, events.New(events.SaleRefunded, sale.SaleID, actor, e.now(), result))

	return result, nil
}

// refundSale checks every precondition before the first write so a rejected
// refund leaves no partial state even outside a transaction.
func (e *Engine) refundSale(ctx context.Context, sale models.Sale, reason string) (*models.RefundResult, error) {
	now := e.now()
	actor := actorOf(ctx)

	commissions, err := e.store.ListCommissionsBySale(ctx, sale.SaleID, true)
	if err != nil {
		return nil, err
	}
	deposit, err := e.store.GetEscrowRecordBySale(ctx, sale.SaleID, false)
	if err != nil {
		return nil, err
	}

	var paid []string
	for _, c := range commissions {
		if c.Status == models.CommissionPaid {
			paid = append(paid, c.ID.String())
		}
	}
	if len(paid) > 0 {
		return nil, &apperrors.ManualReconciliationRequiredError{
			SaleID:        sale.SaleID,
			Reason:        "commission already paid out",
			CommissionIDs: paid,
		}
	}
	if deposit.Status == models.EscrowReleased {
		return nil, &apperrors.ManualReconciliationRequiredError{
			SaleID: sale.SaleID,
			Reason: "escrow already released to the property series",
		}
	}

	result := &models.RefundResult{SaleID: sale.SaleID, Reversed: []models.CommissionRecord{}}
	var entries []models.AuditEntry

	for i := range commissions {
		c := &commissions[i]
		if c.Status == models.CommissionReversed {
			continue
		}
		from := c.Status
		if _, err := e.holds.Reverse(c, now, reason); err != nil {
			return nil, err
		}
		ok, err := e.store.UpdateCommissionStatus(ctx, c, from)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &apperrors.ConcurrentModificationError{RecordID: c.ID.String()}
		}
		result.Reversed = append(result.Reversed, *c)
		entries = append(entries, audit("commission", c.ID.String(), models.AuditCommissionReversed, actor, reason, now, map[string]any{
			"sale_id": sale.SaleID,
			"from":    string(from),
		}))
	}

	result.Escrow = deposit
	if deposit.Status == models.EscrowHeld {
		refunded, err := e.escrow.Refund(ctx, deposit.ID, reason, actor, now)
		if err != nil {
			return nil, err
		}
		result.Escrow = refunded
		entries = append(entries, audit("escrow", refunded.ID.String(), models.AuditEscrowRefunded, actor, reason, now, map[string]any{
			"sale_id":   sale.SaleID,
			"series_id": sale.PropertySeriesID,
		}))
	} else if len(result.Reversed) == 0 {
		result.AlreadyRefunded = true
		return result, nil
	}

	if err := e.store.AppendAudit(ctx, entries...); err != nil {
		return nil, err
	}
	return result, nil
}
