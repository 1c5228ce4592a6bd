package postgres_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/database"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/Ramsey-B/fern/pkg/repositories/postgres"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set")
	}

	port, err := strconv.Atoi(envOr("DB_PORT", "5432"))
	require.NoError(t, err)
	cfg := database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     port,
		User:     envOr("DB_USER_NAME", "user"),
		Password: envOr("DB_PASSWORD", "password"),
		Name:     envOr("DB_NAME", "fern"),
	}

	logger := getTestLogger()
	ctx := context.Background()
	db, err := database.Open(ctx, cfg, logger)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../../db/pg"})
	require.NoError(t, migrations.MigratePostgres(db.SQLDB(), cfg.Name))

	return postgres.New(db, logger)
}

func seedSale(t *testing.T, ctx context.Context, store *postgres.Store, seriesID string) models.Sale {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	sale := models.Sale{
		SaleID:           "sale-" + uuid.NewString(),
		BuyerID:          "buyer-1",
		SellerID:         "A",
		PropertySeriesID: seriesID,
		Tier:             "gold",
		Quantity:         1,
		SaleAmount:       1_000_000,
		Currency:         models.DefaultCurrency,
		CommissionScheme: models.SchemeNetwork,
		OccurredAt:       now,
		CreatedAt:        now,
	}
	require.NoError(t, store.CreateSale(ctx, &sale))
	return sale
}

func TestStore_SaleAndCommissions(t *testing.T) {
	store := getTestStore(t)
	ctx := context.Background()

	sale := seedSale(t, ctx, store, "series-"+uuid.NewString())

	got, err := store.GetSale(ctx, sale.SaleID)
	require.NoError(t, err)
	assert.True(t, got.SameFacts(sale))

	_, err = store.GetSale(ctx, "missing-"+uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))

	now := sale.CreatedAt
	rec := models.CommissionRecord{
		ID:               uuid.New(),
		SaleID:           sale.SaleID,
		BeneficiaryID:    "A-" + uuid.NewString(),
		Role:             models.RoleSeller,
		Tier:             "gold",
		Scheme:           models.SchemeNetwork,
		Rate:             money.NewRate(1, 25),
		Amount:           40_000,
		RateTableVersion: "network-2024-01",
		Status:           models.CommissionPending,
		HoldUntil:        now.Add(-time.Minute),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, store.CreateCommissions(ctx, []models.CommissionRecord{rec}))

	stored, err := store.GetCommission(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.True(t, stored.Rate.Equal(money.NewRate(1, 25)))
	assert.Equal(t, money.Cents(40_000), stored.Amount)

	matured, err := store.ListMaturedCommissions(ctx, now, 0)
	require.NoError(t, err)
	found := false
	for _, m := range matured {
		found = found || m.ID == rec.ID
	}
	assert.True(t, found)

	approvedAt := now
	stored.Status = models.CommissionApproved
	stored.ApprovedAt = &approvedAt
	ok, err := store.UpdateCommissionStatus(ctx, stored, models.CommissionPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateCommissionStatus(ctx, stored, models.CommissionPending)
	require.NoError(t, err)
	assert.False(t, ok)

	byBeneficiary, err := store.ListCommissionsByBeneficiary(ctx, rec.BeneficiaryID)
	require.NoError(t, err)
	require.Len(t, byBeneficiary, 1)
	assert.Equal(t, models.CommissionApproved, byBeneficiary[0].Status)
}

func TestStore_EscrowRelease(t *testing.T) {
	store := getTestStore(t)
	ctx := context.Background()
	seriesID := "series-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.CreateSeries(ctx, &models.PropertySeries{
		SeriesID: seriesID, UnitTarget: 2, Status: models.SeriesOpen, CreatedAt: now, UpdatedAt: now,
	}))

	for i := 0; i < 2; i++ {
		sale := seedSale(t, ctx, store, seriesID)
		require.NoError(t, store.CreateEscrowRecord(ctx, &models.EscrowRecord{
			ID: uuid.New(), SaleID: sale.SaleID, BuyerID: sale.BuyerID, PropertySeriesID: seriesID,
			Quantity: 1, AmountMXN: sale.SaleAmount, Status: models.EscrowHeld, HeldAt: now,
		}))
	}

	released, err := store.ReleaseHeldEscrow(ctx, seriesID, now, "system")
	require.NoError(t, err)
	require.Len(t, released, 2)
	for _, r := range released {
		assert.Equal(t, models.EscrowReleased, r.Status)
		assert.Equal(t, "system", r.ReleasedBy)
	}

	again, err := store.ReleaseHeldEscrow(ctx, seriesID, now, "system")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStore_InTxRollsBack(t *testing.T) {
	store := getTestStore(t)
	ctx := context.Background()
	seriesID := "series-" + uuid.NewString()

	var saleID string
	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context) error {
		saleID = seedSale(t, ctx, store, seriesID).SaleID
		require.NoError(t, store.AppendAudit(ctx, models.AuditEntry{
			ID: uuid.New(), EntityType: "sale", EntityID: saleID, Action: models.AuditSaleProcessed,
			Actor: "system", Details: map[string]any{"k": "v"}, OccurredAt: time.Now().UTC(),
		}))
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, err = store.GetSale(ctx, saleID)
	assert.True(t, apperrors.IsNotFound(err))
	trail, err := store.ListAudit(ctx, "sale", saleID)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestStore_Intermediaries(t *testing.T) {
	store := getTestStore(t)
	ctx := context.Background()
	id := "member-" + uuid.NewString()
	code := "CODE-" + uuid.NewString()

	require.NoError(t, store.UpsertIntermediary(ctx, &models.Intermediary{ID: id, ReferralCode: code, Active: true}))
	require.NoError(t, store.UpsertIntermediary(ctx, &models.Intermediary{ID: id, SponsorID: "root", ReferralCode: code, Active: false}))

	m, err := store.GetIntermediaryByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "root", m.SponsorID)
	assert.False(t, m.Active)
}
