package repositories

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// Every read that finds nothing returns an errors.NotFoundError and every
// storage failure an errors.PersistenceError. forUpdate row-locks the result
// until the surrounding transaction ends.

type SaleRepo interface {
	CreateSale(ctx context.Context, sale *models.Sale) error
	GetSale(ctx context.Context, saleID string) (*models.Sale, error)
}

type CommissionRepo interface {
	CreateCommissions(ctx context.Context, records []models.CommissionRecord) error
	GetCommission(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionRecord, error)
	ListCommissionsBySale(ctx context.Context, saleID string, forUpdate bool) ([]models.CommissionRecord, error)
	ListCommissionsByBeneficiary(ctx context.Context, beneficiaryID string) ([]models.CommissionRecord, error)
	ListMaturedCommissions(ctx context.Context, now time.Time, limit int) ([]models.CommissionRecord, error)
	// UpdateCommissionStatus persists rec only while the stored status is still from.
	UpdateCommissionStatus(ctx context.Context, rec *models.CommissionRecord, from models.CommissionStatus) (bool, error)
}

type EscrowRepo interface {
	CreateEscrowRecord(ctx context.Context, rec *models.EscrowRecord) error
	GetEscrowRecord(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.EscrowRecord, error)
	GetEscrowRecordBySale(ctx context.Context, saleID string, forUpdate bool) (*models.EscrowRecord, error)
	ListEscrowRecordsBySeries(ctx context.Context, seriesID string) ([]models.EscrowRecord, error)
	// ReleaseHeldEscrow releases every held record of the series in one statement.
	ReleaseHeldEscrow(ctx context.Context, seriesID string, at time.Time, actor string) ([]models.EscrowRecord, error)
	// UpdateEscrowStatus persists rec only while the stored status is still from.
	UpdateEscrowStatus(ctx context.Context, rec *models.EscrowRecord, from models.EscrowStatus) (bool, error)
}

type SeriesRepo interface {
	CreateSeries(ctx context.Context, series *models.PropertySeries) error
	GetSeries(ctx context.Context, seriesID string, forUpdate bool) (*models.PropertySeries, error)
	UpdateSeries(ctx context.Context, series *models.PropertySeries) error
}

type IntermediaryRepo interface {
	UpsertIntermediary(ctx context.Context, m *models.Intermediary) error
	GetIntermediary(ctx context.Context, id string) (*models.Intermediary, error)
	GetIntermediaryByCode(ctx context.Context, code string) (*models.Intermediary, error)
}

type AuditRepo interface {
	AppendAudit(ctx context.Context, entries ...models.AuditEntry) error
	ListAudit(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
}

// Store is the full persistence surface used by the settlement engine.
type Store interface {
	database.Transactor
	SaleRepo
	CommissionRepo
	EscrowRepo
	SeriesRepo
	IntermediaryRepo
	AuditRepo
	Ping(ctx context.Context) error
}
