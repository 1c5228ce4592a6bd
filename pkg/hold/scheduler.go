package hold

import (
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// Scheduler owns the commission lifecycle:
//
//	pending -> approved -> paid
//	pending | approved -> reversed
//
// Methods mutate the record in place and report whether anything changed.
type Scheduler struct{}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule turns computed lines into pending records held until
// occurred_at + hold days.
func (s *Scheduler) Schedule(sale models.Sale, breakdown models.CommissionBreakdown, now time.Time) []models.CommissionRecord {
	holdUntil := sale.OccurredAt.UTC().AddDate(0, 0, breakdown.HoldDays)

	records := make([]models.CommissionRecord, 0, len(breakdown.Lines))
	for _, line := range breakdown.Lines {
		records = append(records, models.CommissionRecord{
			ID:               uuid.New(),
			SaleID:           sale.SaleID,
			BeneficiaryID:    line.BeneficiaryID,
			Level:            line.Level,
			Role:             line.Role,
			Tier:             breakdown.Tier,
			Scheme:           breakdown.Scheme,
			Rate:             line.Rate,
			Amount:           line.Amount,
			RateTableVersion: breakdown.RateTableVersion,
			Status:           models.CommissionPending,
			HoldUntil:        holdUntil,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return records
}

// Matured reports whether a pending record's hold window has elapsed.
func (s *Scheduler) Matured(rec models.CommissionRecord, now time.Time) bool {
	return rec.Status == models.CommissionPending && !now.Before(rec.HoldUntil)
}

// Approve moves a matured pending record to approved. Approving an approved record is a no-op.
func (s *Scheduler) Approve(rec *models.CommissionRecord, now time.Time) (bool, error) {
	switch rec.Status {
	case models.CommissionApproved:
		return false, nil
	case models.CommissionPending:
		if now.Before(rec.HoldUntil) {
			return false, invalid(rec, models.CommissionApproved)
		}
		rec.Status = models.CommissionApproved
		rec.ApprovedAt = &now
		rec.UpdatedAt = now
		return true, nil
	default:
		return false, invalid(rec, models.CommissionApproved)
	}
}

// MarkPaid records payout confirmation. paid_at is set once; repeats are no-ops.
func (s *Scheduler) MarkPaid(rec *models.CommissionRecord, paidAt time.Time, payoutRef string) (bool, error) {
	switch rec.Status {
	case models.CommissionPaid:
		return false, nil
	case models.CommissionApproved:
		rec.Status = models.CommissionPaid
		rec.PaidAt = &paidAt
		rec.PayoutRef = payoutRef
		rec.UpdatedAt = paidAt
		return true, nil
	default:
		return false, invalid(rec, models.CommissionPaid)
	}
}

// Reverse cancels an unpaid record. Paid records fail with AlreadyPaidError.
func (s *Scheduler) Reverse(rec *models.CommissionRecord, at time.Time, reason string) (bool, error) {
	switch rec.Status {
	case models.CommissionPending, models.CommissionApproved:
		rec.Status = models.CommissionReversed
		rec.ReversedAt = &at
		rec.ReversalReason = reason
		rec.UpdatedAt = at
		return true, nil
	case models.CommissionPaid:
		return false, &apperrors.AlreadyPaidError{CommissionID: rec.ID.String()}
	default:
		return false, invalid(rec, models.CommissionReversed)
	}
}

func invalid(rec *models.CommissionRecord, to models.CommissionStatus) error {
	return &apperrors.InvalidTransitionError{
		RecordID: rec.ID.String(),
		From:     string(rec.Status),
		To:       string(to),
	}
}
