package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

const DefaultSweepBatch = 500

// SweepResult counts what one maturity sweep did.
type SweepResult struct {
	Scanned  int                       `json:"scanned"`
	Approved []models.CommissionRecord `json:"approved"`
	Skipped  int                       `json:"skipped"`
	Failed   int                       `json:"failed"`
}

// ApproveMatured moves pending commissions whose hold has elapsed to approved.
// Each record is re-read under a row lock and updated conditionally, so
// overlapping sweeps approve every record exactly once.
func (e *Engine) ApproveMatured(ctx context.Context, limit int) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.ApproveMatured")
	defer span.End()
	start := time.Now()

	if limit <= 0 {
		limit = DefaultSweepBatch
	}
	now := e.now()
	actor := actorOf(ctx)

	candidates, err := e.store.ListMaturedCommissions(ctx, now, limit)
	if err != nil {
		metrics.RecordSweep("error")
		e.logger.WithContext(ctx).WithError(err).Error("failed to list matured commissions")
		return nil, err
	}

	result := &SweepResult{Scanned: len(candidates), Approved: []models.CommissionRecord{}}
	for _, candidate := range candidates {
		approved, err := e.approveOne(ctx, candidate.ID, now, actor)
		switch {
		case err != nil:
			result.Failed++
			e.logger.WithContext(ctx).WithError(err).WithField("commission_id", candidate.ID.String()).Warn("failed to approve commission")
		case approved == nil:
			result.Skipped++
		default:
			result.Approved = append(result.Approved, *approved)
		}
	}

	metrics.RecordOperation("sweep", time.Since(start).Seconds())
	metrics.RecordCommissionTransition(string(models.CommissionApproved), len(result.Approved))
	if result.Failed > 0 {
		metrics.RecordSweep("partial")
	} else {
		metrics.RecordSweep("success")
	}

	if len(result.Approved) > 0 || result.Failed > 0 {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"scanned":  result.Scanned,
			"approved": len(result.Approved),
			"skipped":  result.Skipped,
			"failed":   result.Failed,
		}).Info("maturity sweep finished")
	}

	evts := ectolinq.Map(result.Approved, func(c models.CommissionRecord) events.Event {
		return events.New(events.CommissionApproved, c.SaleID, actor, now, c)
	})
	e.publish(ctx, evts...)

	return result, nil
}

// approveOne returns nil without error when the record no longer qualifies.
func (e *Engine) approveOne(ctx context.Context, id uuid.UUID, now time.Time, actor string) (*models.CommissionRecord, error) {
	var approved *models.CommissionRecord
	err := e.store.InTx(ctx, func(ctx context.Context) error {
		current, err := e.store.GetCommission(ctx, id, true)
		if err != nil {
			return err
		}
		if !e.holds.Matured(*current, now) {
			return nil
		}
		from := current.Status
		changed, err := e.holds.Approve(current, now)
		if err != nil || !changed {
			return err
		}
		ok, err := e.store.UpdateCommissionStatus(ctx, current, from)
		if err != nil || !ok {
			return err
		}
		approved = current
		return e.store.AppendAudit(ctx, audit("commission", current.ID.String(), models.AuditCommissionApproved, actor, "hold elapsed", now, map[string]any{
			"sale_id":    current.SaleID,
			"hold_until": current.HoldUntil,
		}))
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// ConfirmPayout records that an approved commission was paid. Confirming an
// already paid record returns it unchanged.
func (e *Engine) ConfirmPayout(ctx context.Context, commissionID uuid.UUID, payoutRef string, paidAt time.Time) (*models.CommissionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.ConfirmPayout")
	defer span.End()

	if strings.TrimSpace(payoutRef) == "" {
		return nil, apperrors.NewInvalidInput("payout_ref", "is required")
	}
	if paidAt.IsZero() {
		paidAt = e.now()
	}
	paidAt = paidAt.UTC().Truncate(time.Microsecond)

	rec, err := e.store.GetCommission(ctx, commissionID, false)
	if err != nil {
		return nil, err
	}

	actor := actorOf(ctx)
	var (
		paid    *models.CommissionRecord
		changed bool
	)
	err = e.withKeys(ctx, []string{lock.SaleKey(rec.SaleID)}, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context) error {
			current, err := e.store.GetCommission(ctx, commissionID, true)
			if err != nil {
				return err
			}
			from := current.Status
			changed, err = e.holds.MarkPaid(current, paidAt, payoutRef)
			if err != nil {
				return err
			}
			paid = current
			if !changed {
				return nil
			}
			ok, err := e.store.UpdateCommissionStatus(ctx, current, from)
			if err != nil {
				return err
			}
			if !ok {
				return &apperrors.ConcurrentModificationError{RecordID: current.ID.String()}
			}
			return e.store.AppendAudit(ctx, audit("commission", current.ID.String(), models.AuditCommissionPaid, actor, "", e.now(), map[string]any{
				"sale_id":    current.SaleID,
				"payout_ref": payoutRef,
				"amount":     current.Amount.String(),
			}))
		})
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("commission_id", commissionID.String()).Warn("failed to confirm payout")
		return nil, err
	}

	if changed {
		metrics.RecordCommissionTransition(string(models.CommissionPaid), 1)
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"commission_id":  paid.ID.String(),
			"sale_id":        paid.SaleID,
			"beneficiary_id": paid.BeneficiaryID,
			"payout_ref":     payoutRef,
		}).Info("commission paid")
		e.publish(ctx, events.New(events.CommissionPaid, paid.SaleID, actor, paidAt, paid))
	}
	return paid, nil
}
