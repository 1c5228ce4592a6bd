package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/google/uuid"
)

type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionPaid     CommissionStatus = "paid"
	CommissionReversed CommissionStatus = "reversed"
)

// CommissionRecord is one beneficiary's share of one sale.
type CommissionRecord struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	SaleID           string           `json:"sale_id" db:"sale_id"`
	BeneficiaryID    string           `json:"beneficiary_id" db:"beneficiary_id"`
	Level            int              `json:"level" db:"level"`
	Role             Role             `json:"role" db:"role"`
	Tier             string           `json:"tier" db:"tier"`
	Scheme           Scheme           `json:"scheme" db:"scheme"`
	Rate             money.Rate       `json:"rate" db:"rate"`
	Amount           money.Cents      `json:"amount_cents" db:"amount"`
	RateTableVersion string           `json:"rate_table_version" db:"rate_table_version"`
	Status           CommissionStatus `json:"status" db:"status"`
	HoldUntil        time.Time        `json:"hold_until" db:"hold_until"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	PaidAt           *time.Time       `json:"paid_at,omitempty" db:"paid_at"`
	PayoutRef        string           `json:"payout_ref,omitempty" db:"payout_ref"`
	ReversedAt       *time.Time       `json:"reversed_at,omitempty" db:"reversed_at"`
	ReversalReason   string           `json:"reversal_reason,omitempty" db:"reversal_reason"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// CommissionLine is a computed, not yet scheduled, commission share.
type CommissionLine struct {
	BeneficiaryID string
	Level         int
	Role          Role
	Rate          money.Rate
	Amount        money.Cents
}

// CommissionBreakdown is the calculator output for one sale.
type CommissionBreakdown struct {
	Scheme           Scheme
	Tier             string
	RateTableVersion string
	TotalRate        money.Rate
	Total            money.Cents
	HoldDays         int
	Lines            []CommissionLine
}
