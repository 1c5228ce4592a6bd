package handlers

import "time"

type SaleIDParam struct {
	SaleID string `param:"id" validate:"required"`
}

type RefundRequest struct {
	SaleID string `param:"id" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type BeneficiaryParam struct {
	BeneficiaryID string `param:"id" validate:"required"`
}

type PayoutRequest struct {
	CommissionID string    `param:"id" validate:"required,uuid"`
	PayoutRef    string    `json:"payout_ref" validate:"required"`
	PaidAt       time.Time `json:"paid_at"`
}

type SweepRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=10000"`
}

type SeriesRequest struct {
	SeriesID   string `param:"id" validate:"required"`
	UnitTarget int    `json:"unit_target" validate:"required,gt=0"`
}

type SeriesParam struct {
	SeriesID string `param:"id" validate:"required"`
}

type EscrowRefundRequest struct {
	RecordID string `param:"id" validate:"required,uuid"`
	Reason   string `json:"reason" validate:"required"`
}

type IntermediaryRequest struct {
	ID           string `param:"id" validate:"required"`
	SponsorID    string `json:"sponsor_id"`
	ReferralCode string `json:"referral_code"`
	Active       *bool  `json:"active"`
}

type AuditParam struct {
	EntityType string `param:"type" validate:"required,oneof=sale commission escrow series"`
	EntityID   string `param:"id" validate:"required"`
}
