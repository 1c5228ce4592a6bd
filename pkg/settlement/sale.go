package settlement

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ProcessSale resolves the chain, schedules commissions and deposits escrow
// for a sale in one transaction. Replaying a processed sale_id returns the
// stored settlement without writing anything.
func (e *Engine) ProcessSale(ctx context.Context, sale models.Sale) (*models.SaleSettlement, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.ProcessSale")
	defer span.End()
	start := time.Now()

	sale.Normalize()
	if err := validateSale(sale); err != nil {
		metrics.RecordSale(string(sale.CommissionScheme), resultLabel(err), time.Since(start).Seconds())
		return nil, err
	}

	fields := map[string]any{
		"sale_id":   sale.SaleID,
		"series_id": sale.PropertySeriesID,
		"scheme":    sale.CommissionScheme,
		"tier":      sale.Tier,
	}

	var result *models.SaleSettlement
	keys := []string{lock.SaleKey(sale.SaleID), lock.SeriesKey(sale.PropertySeriesID)}
	err := e.withKeys(ctx, keys, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context) error {
			var err error
			result, err = e.processSale(ctx, sale)
			return err
		})
	})
	if err != nil {
		metrics.RecordSale(string(sale.CommissionScheme), resultLabel(err), time.Since(start).Seconds())
		entry := e.logger.WithContext(ctx).WithError(err).WithFields(fields)
		if apperrors.IsTransient(err) {
			entry.Error("failed to process sale")
		} else {
			entry.Warn("sale rejected")
		}
		return nil, err
	}

	if result.Replayed {
		metrics.RecordSale(string(sale.CommissionScheme), "replayed", time.Since(start).Seconds())
		e.logger.WithContext(ctx).WithFields(fields).Info("sale already processed, returning stored settlement")
		return result, nil
	}

	total := money.Sum(ectolinq.Map(result.Commissions, func(c models.CommissionRecord) money.Cents { return c.Amount })...)
	metrics.RecordSale(string(sale.CommissionScheme), "success", time.Since(start).Seconds())
	metrics.RecordCommissionScheduled(string(sale.CommissionScheme), int64(total))
	metrics.RecordEscrow("deposited", 1)
	if len(result.Released) > 0 {
		metrics.RecordEscrow("released", len(result.Released))
	}

	fields["commission_total"] = total.String()
	fields["chain_length"] = result.Chain.Len()
	fields["released"] = len(result.Released)
	e.logger.WithContext(ctx).WithFields(fields).Info("sale settled")

	actor := actorOf(ctx)
	evts := []events.Event{events.New(events.SaleSettled, sale.SaleID, actor, result.Sale.CreatedAt, result)}
	if len(result.Released) > 0 {
		evts = append(evts, releasedEvent(sale.PropertySeriesID, actor, result.Sale.CreatedAt, result.Released))
	}
	e.publish(ctx, evts...)

	return result, nil
}

func (e *Engine) processSale(ctx context.Context, sale models.Sale) (*models.SaleSettlement, error) {
	existing, err := e.store.GetSale(ctx, sale.SaleID)
	if err == nil {
		if !existing.SameFacts(sale) {
			return nil, &apperrors.IdempotencyConflictError{SaleID: sale.SaleID}
		}
		return e.loadSettlement(ctx, *existing, true)
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	now := e.now()
	actor := actorOf(ctx)

	table, err := e.rates.Resolve(sale.CommissionScheme, sale.OccurredAt)
	if err != nil {
		return nil, err
	}
	chain, err := e.resolver.Resolve(ctx, sale.SellerID, sale.ReferralCode)
	if err != nil {
		return nil, err
	}
	breakdown, err := e.calc.Compute(sale, chain, table)
	if err != nil {
		return nil, err
	}
	records := e.holds.Schedule(sale, breakdown, now)

	sale.CreatedAt = now
	if err := e.store.CreateSale(ctx, &sale); err != nil {
		return nil, err
	}
	if err := e.store.CreateCommissions(ctx, records); err != nil {
		return nil, err
	}

	deposit, err := e.escrow.Deposit(ctx, sale, now)
	if err != nil {
		return nil, err
	}
	released, err := e.escrow.EvaluateThreshold(ctx, sale.PropertySeriesID, now, actor)
	if err != nil {
		return nil, err
	}
	for _, r := range released {
		if r.ID == deposit.ID {
			rec := r
			deposit = &rec
		}
	}

	entries := []models.AuditEntry{
		audit("sale", sale.SaleID, models.AuditSaleProcessed, actor, "", now, map[string]any{
			"rate_table_version": breakdown.RateTableVersion,
			"commission_total":   breakdown.Total.String(),
			"beneficiaries":      chain.BeneficiaryIDs(),
		}),
		audit("escrow", deposit.ID.String(), models.AuditEscrowDeposited, actor, "", now, map[string]any{
			"sale_id":   sale.SaleID,
			"series_id": sale.PropertySeriesID,
			"quantity":  sale.Quantity,
		}),
	}
	if len(released) > 0 {
		entries = append(entries, audit("series", sale.PropertySeriesID, models.AuditEscrowReleased, actor, "unit target reached", now, map[string]any{
			"released": len(released),
		}))
	}
	if err := e.store.AppendAudit(ctx, entries...); err != nil {
		return nil, err
	}

	return &models.SaleSettlement{
		Sale:        sale,
		Chain:       chain,
		Commissions: records,
		Escrow:      *deposit,
		Released:    released,
	}, nil
}

// GetSale returns the stored settlement for a processed sale.
func (e *Engine) GetSale(ctx context.Context, saleID string) (*models.SaleSettlement, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Engine.GetSale")
	defer span.End()

	sale, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return e.loadSettlement(ctx, *sale, false)
}

func (e *Engine) loadSettlement(ctx context.Context, sale models.Sale, replayed bool) (*models.SaleSettlement, error) {
	commissions, err := e.store.ListCommissionsBySale(ctx, sale.SaleID, false)
	if err != nil {
		return nil, err
	}
	deposit, err := e.store.GetEscrowRecordBySale(ctx, sale.SaleID, false)
	if err != nil {
		return nil, err
	}

	chain := models.ReferralChain{Links: []models.ChainLink{}}
	for _, c := range commissions {
		if c.Role == models.RoleHouse {
			continue
		}
		chain.Links = append(chain.Links, models.ChainLink{Level: c.Level, BeneficiaryID: c.BeneficiaryID, Role: c.Role})
	}
	sort.Slice(chain.Links, func(i, j int) bool { return chain.Links[i].Level < chain.Links[j].Level })

	return &models.SaleSettlement{
		Sale:        sale,
		Chain:       chain,
		Commissions: commissions,
		Escrow:      *deposit,
		Replayed:    replayed,
	}, nil
}

func validateSale(sale models.Sale) error {
	required := map[string]string{
		"sale_id":            sale.SaleID,
		"buyer_id":           sale.BuyerID,
		"property_series_id": sale.PropertySeriesID,
		"tier":               sale.Tier,
	}
	for _, field := range []string{"sale_id", "buyer_id", "property_series_id", "tier"} {
		if strings.TrimSpace(required[field]) == "" {
			return apperrors.NewInvalidInput(field, "is required")
		}
	}
	if sale.SaleAmount <= 0 {
		return apperrors.NewInvalidInput("sale_amount", "must be greater than zero")
	}
	if sale.AmountUSD < 0 {
		return apperrors.NewInvalidInput("amount_usd", "must not be negative")
	}
	if sale.Quantity <= 0 {
		return apperrors.NewInvalidInput("quantity", "must be greater than zero")
	}
	if !sale.CommissionScheme.Valid() {
		return &apperrors.UnknownSchemeError{Scheme: string(sale.CommissionScheme)}
	}
	if sale.OccurredAt.IsZero() {
		return apperrors.NewInvalidInput("occurred_at", "is required")
	}
	return nil
}

func releasedEvent(seriesID, actor string, at time.Time, released []models.EscrowRecord) events.Event {
	return events.New(events.EscrowReleased, seriesID, actor, at, map[string]any{
		"series_id": seriesID,
		"records":   released,
	})
}
