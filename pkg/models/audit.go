package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditSaleProcessed      AuditAction = "sale.processed"
	AuditCommissionApproved AuditAction = "commission.approved"
	AuditCommissionPaid     AuditAction = "commission.paid"
	AuditCommissionReversed AuditAction = "commission.reversed"
	AuditEscrowDeposited    AuditAction = "escrow.deposited"
	AuditEscrowReleased     AuditAction = "escrow.released"
	AuditEscrowRefunded     AuditAction = "escrow.refunded"
	AuditSeriesRegistered   AuditAction = "series.registered"
)

// AuditEntry is an append-only record of a state change and who made it.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     AuditAction    `json:"action"`
	Actor      string         `json:"actor"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
