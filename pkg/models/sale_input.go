package models

import (
	"strings"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/shopspring/decimal"
)

// SaleInput is a completed sale as reported by the marketplace, over HTTP or
// kafka. Amounts are decimal currency units, e.g. "10000.00".
type SaleInput struct {
	SaleID           string          `json:"sale_id" validate:"required"`
	BuyerID          string          `json:"buyer_id" validate:"required"`
	SellerID         string          `json:"seller_id"`
	ReferralCode     string          `json:"referral_code"`
	PropertySeriesID string          `json:"property_series_id" validate:"required"`
	Tier             string          `json:"tier" validate:"required"`
	Season           string          `json:"season"`
	Quantity         int             `json:"quantity" validate:"omitempty,gt=0"`
	Amount           decimal.Decimal `json:"amount"`
	AmountUSD        decimal.Decimal `json:"amount_usd"`
	Currency         string          `json:"currency" validate:"omitempty,len=3"`
	CommissionScheme string          `json:"commission_scheme" validate:"omitempty,oneof=network direct"`
	OccurredAt       time.Time       `json:"occurred_at" validate:"required"`
}

// ToSale converts the amounts to cents and normalizes tier and currency case.
func (m SaleInput) ToSale() (Sale, error) {
	amount, err := money.FromDecimal(m.Amount)
	if err != nil {
		return Sale{}, apperrors.NewInvalidInput("amount", "%s", err.Error())
	}
	if amount <= 0 {
		return Sale{}, apperrors.NewInvalidInput("amount", "must be greater than zero")
	}
	usd, err := money.FromDecimal(m.AmountUSD)
	if err != nil {
		return Sale{}, apperrors.NewInvalidInput("amount_usd", "%s", err.Error())
	}

	return Sale{
		SaleID:           m.SaleID,
		BuyerID:          m.BuyerID,
		SellerID:         m.SellerID,
		ReferralCode:     m.ReferralCode,
		PropertySeriesID: m.PropertySeriesID,
		Tier:             strings.ToLower(m.Tier),
		Season:           m.Season,
		Quantity:         m.Quantity,
		SaleAmount:       amount,
		AmountUSD:        usd,
		Currency:         strings.ToUpper(m.Currency),
		CommissionScheme: Scheme(m.CommissionScheme),
		OccurredAt:       m.OccurredAt,
	}, nil
}
