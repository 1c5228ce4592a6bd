package handlers

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/settlement"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Settler is the engine surface exposed over HTTP
type Settler interface {
	ProcessSale(ctx context.Context, sale models.Sale) (*models.SaleSettlement, error)
	GetSale(ctx context.Context, saleID string) (*models.SaleSettlement, error)
	ProcessRefund(ctx context.Context, saleID, reason string) (*models.RefundResult, error)
	GetCommissions(ctx context.Context, beneficiaryID string) ([]models.CommissionRecord, error)
	ConfirmPayout(ctx context.Context, commissionID uuid.UUID, payoutRef string, paidAt time.Time) (*models.CommissionRecord, error)
	ApproveMatured(ctx context.Context, limit int) (*settlement.SweepResult, error)
	RegisterSeries(ctx context.Context, seriesID string, unitTarget int) (*models.SeriesSnapshot, error)
	GetEscrowStatus(ctx context.Context, seriesID string) (*models.SeriesSnapshot, error)
	ReleaseSeries(ctx context.Context, seriesID string) ([]models.EscrowRecord, error)
	RefundEscrow(ctx context.Context, recordID uuid.UUID, reason string) (*models.RefundResult, error)
	RegisterIntermediary(ctx context.Context, m models.Intermediary) (*models.Intermediary, error)
	GetAudit(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
}

var _ Settler = (*settlement.Engine)(nil)

// SettlementHandler handles settlement API requests
type SettlementHandler struct {
	settler Settler
	logger  ectologger.Logger
}

func NewSettlementHandler(settler Settler, logger ectologger.Logger) *SettlementHandler {
	return &SettlementHandler{settler: settler, logger: logger}
}

// ProcessSale settles a completed sale. Replays return 200 with replayed=true.
// POST /api/v1/sales
func (h *SettlementHandler) ProcessSale(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.SaleInput](c)
	if err != nil {
		return err
	}
	sale, err := req.ToSale()
	if err != nil {
		return err
	}

	result, err := h.settler.ProcessSale(ctx, sale)
	if err != nil {
		return err
	}
	if result.Replayed {
		return SuccessResponse(c, result)
	}
	return CreatedResponse(c, result)
}

// GetSale returns a sale with its commissions and escrow record
// GET /api/v1/sales/:id
func (h *SettlementHandler) GetSale(c echo.Context) error {
	req, err := utils.BindRequest[SaleIDParam](c)
	if err != nil {
		return err
	}

	result, err := h.settler.GetSale(c.Request().Context(), req.SaleID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// ProcessRefund reverses a sale's commissions and refunds its escrow
// POST /api/v1/sales/:id/refund
func (h *SettlementHandler) ProcessRefund(c echo.Context) error {
	req, err := utils.BindRequest[RefundRequest](c)
	if err != nil {
		return err
	}

	result, err := h.settler.ProcessRefund(c.Request().Context(), req.SaleID, req.Reason)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// GetCommissions lists a beneficiary's commission records
// GET /api/v1/beneficiaries/:id/commissions
func (h *SettlementHandler) GetCommissions(c echo.Context) error {
	req, err := utils.BindRequest[BeneficiaryParam](c)
	if err != nil {
		return err
	}

	records, err := h.settler.GetCommissions(c.Request().Context(), req.BeneficiaryID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, NewListResponse(records))
}

// ConfirmPayout marks an approved commission as paid
// POST /api/v1/commissions/:id/paid
func (h *SettlementHandler) ConfirmPayout(c echo.Context) error {
	req, err := utils.BindRequest[PayoutRequest](c)
	if err != nil {
		return err
	}

	rec, err := h.settler.ConfirmPayout(c.Request().Context(), uuid.MustParse(req.CommissionID), req.PayoutRef, req.PaidAt)
	if err != nil {
		return err
	}
	return SuccessResponse(c, rec)
}

// Sweep approves matured commissions on demand
// POST /api/v1/commissions/sweep
func (h *SettlementHandler) Sweep(c echo.Context) error {
	req, err := utils.BindRequest[SweepRequest](c)
	if err != nil {
		return err
	}

	result, err := h.settler.ApproveMatured(c.Request().Context(), req.Limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// RegisterSeries creates a series or changes its unit target
// PUT /api/v1/series/:id
func (h *SettlementHandler) RegisterSeries(c echo.Context) error {
	req, err := utils.BindRequest[SeriesRequest](c)
	if err != nil {
		return err
	}

	snap, err := h.settler.RegisterSeries(c.Request().Context(), req.SeriesID, req.UnitTarget)
	if err != nil {
		return err
	}
	return SuccessResponse(c, snap)
}

// GetEscrowStatus summarizes a series and its escrow records
// GET /api/v1/series/:id
func (h *SettlementHandler) GetEscrowStatus(c echo.Context) error {
	req, err := utils.BindRequest[SeriesParam](c)
	if err != nil {
		return err
	}

	snap, err := h.settler.GetEscrowStatus(c.Request().Context(), req.SeriesID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, snap)
}

// ReleaseSeries is the operator override for a series that reached its target
// POST /api/v1/series/:id/release
func (h *SettlementHandler) ReleaseSeries(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[SeriesParam](c)
	if err != nil {
		return err
	}

	released, err := h.settler.ReleaseSeries(ctx, req.SeriesID)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"series_id": req.SeriesID,
		"released":  len(released),
	}).Info("operator released series")

	return SuccessResponse(c, NewListResponse(released))
}

// RefundEscrow is the operator override refunding one held record
// POST /api/v1/escrow/:id/refund
func (h *SettlementHandler) RefundEscrow(c echo.Context) error {
	req, err := utils.BindRequest[EscrowRefundRequest](c)
	if err != nil {
		return err
	}

	result, err := h.settler.RefundEscrow(c.Request().Context(), uuid.MustParse(req.RecordID), req.Reason)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

// RegisterIntermediary creates or updates a referral chain member
// PUT /api/v1/intermediaries/:id
func (h *SettlementHandler) RegisterIntermediary(c echo.Context) error {
	req, err := utils.BindRequest[IntermediaryRequest](c)
	if err != nil {
		return err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	m, err := h.settler.RegisterIntermediary(c.Request().Context(), models.Intermediary{
		ID:           req.ID,
		SponsorID:    req.SponsorID,
		ReferralCode: req.ReferralCode,
		Active:       active,
	})
	if err != nil {
		return err
	}
	return SuccessResponse(c, m)
}

// GetAudit lists the audit trail of one entity
// GET /api/v1/audit/:type/:id
func (h *SettlementHandler) GetAudit(c echo.Context) error {
	req, err := utils.BindRequest[AuditParam](c)
	if err != nil {
		return err
	}

	entries, err := h.settler.GetAudit(c.Request().Context(), req.EntityType, req.EntityID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, NewListResponse(entries))
}
