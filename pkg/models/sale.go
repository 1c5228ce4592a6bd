package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/money"
)

// Scheme selects how a sale's commission is computed. The schemes are mutually exclusive per sale.
type Scheme string

const (
	// SchemeNetwork pays a flat total split across the referral chain.
	SchemeNetwork Scheme = "network"
	// SchemeDirect pays a per-tier rate to the direct seller.
	SchemeDirect Scheme = "direct"
)

func (s Scheme) Valid() bool {
	return s == SchemeNetwork || s == SchemeDirect
}

const DefaultCurrency = "MXN"

// Sale is an immutable completed certificate sale.
type Sale struct {
	SaleID           string      `json:"sale_id" db:"sale_id"`
	BuyerID          string      `json:"buyer_id" db:"buyer_id"`
	SellerID         string      `json:"seller_id,omitempty" db:"seller_id"`
	ReferralCode     string      `json:"referral_code,omitempty" db:"referral_code"`
	PropertySeriesID string      `json:"property_series_id" db:"property_series_id"`
	Tier             string      `json:"tier" db:"tier"`
	Season           string      `json:"season,omitempty" db:"season"`
	Quantity         int         `json:"quantity" db:"quantity"`
	SaleAmount       money.Cents `json:"sale_amount_cents" db:"sale_amount"`
	AmountUSD        money.Cents `json:"amount_usd_cents,omitempty" db:"amount_usd"`
	Currency         string      `json:"currency" db:"currency"`
	CommissionScheme Scheme      `json:"commission_scheme" db:"commission_scheme"`
	OccurredAt       time.Time   `json:"occurred_at" db:"occurred_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// Normalize fills defaults for optional fields and trims occurred_at to the
// precision the database stores.
func (s *Sale) Normalize() {
	if s.Quantity == 0 {
		s.Quantity = 1
	}
	if s.Currency == "" {
		s.Currency = DefaultCurrency
	}
	if s.CommissionScheme == "" {
		s.CommissionScheme = SchemeNetwork
	}
	s.OccurredAt = s.OccurredAt.UTC().Truncate(time.Microsecond)
}

// SameFacts reports whether o describes the same sale, ignoring bookkeeping timestamps.
func (s Sale) SameFacts(o Sale) bool {
	return s.SaleID == o.SaleID &&
		s.BuyerID == o.BuyerID &&
		s.SellerID == o.SellerID &&
		s.ReferralCode == o.ReferralCode &&
		s.PropertySeriesID == o.PropertySeriesID &&
		s.Tier == o.Tier &&
		s.Season == o.Season &&
		s.Quantity == o.Quantity &&
		s.SaleAmount == o.SaleAmount &&
		s.AmountUSD == o.AmountUSD &&
		s.Currency == o.Currency &&
		s.CommissionScheme == o.CommissionScheme &&
		s.OccurredAt.Equal(o.OccurredAt)
}
