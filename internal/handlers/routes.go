package handlers

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the settlement API under /api/v1. Middleware such as
// authentication is applied by the caller through mw.
func (h *SettlementHandler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	api := e.Group("/api/v1", mw...)

	api.POST("/sales", h.ProcessSale)
	api.GET("/sales/:id", h.GetSale)
	api.POST("/sales/:id/refund", h.ProcessRefund)

	api.GET("/beneficiaries/:id/commissions", h.GetCommissions)
	api.POST("/commissions/sweep", h.Sweep)
	api.POST("/commissions/:id/paid", h.ConfirmPayout)

	api.PUT("/series/:id", h.RegisterSeries)
	api.GET("/series/:id", h.GetEscrowStatus)
	api.POST("/series/:id/release", h.ReleaseSeries)

	api.POST("/escrow/:id/refund", h.RefundEscrow)

	api.PUT("/intermediaries/:id", h.RegisterIntermediary)
	api.GET("/audit/:type/:id", h.GetAudit)
}
