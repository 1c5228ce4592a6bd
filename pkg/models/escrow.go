package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/google/uuid"
)

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// EscrowRecord holds one sale's buyer funds until its series sells out.
type EscrowRecord struct {
	ID               uuid.UUID    `json:"id" db:"id"`
	SaleID           string       `json:"sale_id" db:"sale_id"`
	BuyerID          string       `json:"buyer_id" db:"buyer_id"`
	PropertySeriesID string       `json:"property_series_id" db:"property_series_id"`
	Quantity         int          `json:"quantity" db:"quantity"`
	AmountMXN        money.Cents  `json:"amount_mxn_cents" db:"amount_mxn"`
	AmountUSD        money.Cents  `json:"amount_usd_cents" db:"amount_usd"`
	Season           string       `json:"season,omitempty" db:"season"`
	Status           EscrowStatus `json:"status" db:"status"`
	HeldAt           time.Time    `json:"held_at" db:"held_at"`
	ReleasedAt       *time.Time   `json:"released_at,omitempty" db:"released_at"`
	ReleasedBy       string       `json:"released_by,omitempty" db:"released_by"`
	RefundedAt       *time.Time   `json:"refunded_at,omitempty" db:"refunded_at"`
	RefundedBy       string       `json:"refunded_by,omitempty" db:"refunded_by"`
	RefundReason     string       `json:"refund_reason,omitempty" db:"refund_reason"`
}

type SeriesStatus string

const (
	SeriesOpen     SeriesStatus = "open"
	SeriesReleased SeriesStatus = "released"
)

// PropertySeries is a fractional property offering with a fixed unit target.
type PropertySeries struct {
	SeriesID   string       `json:"series_id" db:"series_id"`
	UnitTarget int          `json:"unit_target" db:"unit_target"`
	UnitsSold  int          `json:"units_sold" db:"units_sold"`
	Status     SeriesStatus `json:"status" db:"status"`
	ReleasedAt *time.Time   `json:"released_at,omitempty" db:"released_at"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

func (p PropertySeries) ThresholdReached() bool {
	return p.UnitsSold >= p.UnitTarget
}

func (p PropertySeries) Remaining() int {
	if p.UnitsSold >= p.UnitTarget {
		return 0
	}
	return p.UnitTarget - p.UnitsSold
}

// SeriesSnapshot is the read model returned for escrow status queries.
type SeriesSnapshot struct {
	Series         PropertySeries `json:"series"`
	HeldCount      int            `json:"held_count"`
	ReleasedCount  int            `json:"released_count"`
	RefundedCount  int            `json:"refunded_count"`
	HeldAmount     money.Cents    `json:"held_amount_mxn_cents"`
	ReleasedAmount money.Cents    `json:"released_amount_mxn_cents"`
	Records        []EscrowRecord `json:"records"`
}
