package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func commission(saleID, beneficiary string, status models.CommissionStatus, holdUntil time.Time) models.CommissionRecord {
	return models.CommissionRecord{
		ID:            uuid.New(),
		SaleID:        saleID,
		BeneficiaryID: beneficiary,
		Rate:          money.Percent(4),
		Amount:        400,
		Status:        status,
		HoldUntil:     holdUntil,
		CreatedAt:     now,
	}
}

func TestInTxRollsBackEveryWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.CreateSale(ctx, &models.Sale{SaleID: "s-1"}))
		require.NoError(t, store.CreateCommissions(ctx, []models.CommissionRecord{commission("s-1", "A", models.CommissionPending, now)}))
		require.NoError(t, store.CreateSeries(ctx, &models.PropertySeries{SeriesID: "villa-1", UnitTarget: 2}))
		require.NoError(t, store.AppendAudit(ctx, models.AuditEntry{ID: uuid.New(), EntityType: "sale", EntityID: "s-1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetSale(ctx, "s-1")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = store.GetSeries(ctx, "villa-1", false)
	assert.True(t, apperrors.IsNotFound(err))
	commissions, err := store.ListCommissionsBySale(ctx, "s-1", false)
	require.NoError(t, err)
	assert.Empty(t, commissions)
	trail, err := store.ListAudit(ctx, "sale", "s-1")
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestNestedInTxJoinsOuter(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.InTx(ctx, func(ctx context.Context) error {
		err := store.InTx(ctx, func(ctx context.Context) error {
			return store.CreateSale(ctx, &models.Sale{SaleID: "s-1"})
		})
		require.NoError(t, err)
		return errors.New("outer failed")
	})
	require.Error(t, err)

	_, err = store.GetSale(ctx, "s-1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTransactionsDoNotSeePartialDeposits(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.CreateSeries(ctx, &models.PropertySeries{SeriesID: "villa-1", UnitTarget: 48, Status: models.SeriesOpen}))

	inside := make(chan struct{})
	finish := make(chan struct{})
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- store.InTx(ctx, func(ctx context.Context) error {
			rec := &models.EscrowRecord{ID: uuid.New(), SaleID: "s-1", PropertySeriesID: "villa-1", Quantity: 2, Status: models.EscrowHeld, HeldAt: now}
			if err := store.CreateEscrowRecord(ctx, rec); err != nil {
				return err
			}
			close(inside)
			<-finish
			series, err := store.GetSeries(ctx, "villa-1", true)
			if err != nil {
				return err
			}
			series.UnitsSold += rec.Quantity
			return store.UpdateSeries(ctx, series)
		})
	}()
	<-inside

	type view struct {
		unitsSold int
		records   int
	}
	seen := make(chan view, 1)
	go func() {
		_ = store.InTx(ctx, func(ctx context.Context) error {
			series, err := store.GetSeries(ctx, "villa-1", true)
			if err != nil {
				return err
			}
			records, err := store.ListEscrowRecordsBySeries(ctx, "villa-1")
			if err != nil {
				return err
			}
			seen <- view{unitsSold: series.UnitsSold, records: len(records)}
			return nil
		})
	}()

	select {
	case v := <-seen:
		t.Fatalf("read ran while a deposit was in flight: %+v", v)
	case <-time.After(30 * time.Millisecond):
	}

	close(finish)
	require.NoError(t, <-writerDone)
	assert.Equal(t, view{unitsSold: 2, records: 1}, <-seen)
}

func TestFailOnFailsOnce(t *testing.T) {
	store := New()
	ctx := context.Background()

	store.FailOn("CreateSale", errors.New("down"))
	err := store.CreateSale(ctx, &models.Sale{SaleID: "s-1"})
	assert.True(t, apperrors.IsPersistence(err))

	require.NoError(t, store.CreateSale(ctx, &models.Sale{SaleID: "s-1"}))
	assert.True(t, apperrors.IsPersistence(store.CreateSale(ctx, &models.Sale{SaleID: "s-1"})))
}

func TestUpdateCommissionStatusIsConditional(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec := commission("s-1", "A", models.CommissionPending, now)
	require.NoError(t, store.CreateCommissions(ctx, []models.CommissionRecord{rec}))

	rec.Status = models.CommissionApproved
	ok, err := store.UpdateCommissionStatus(ctx, &rec, models.CommissionPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateCommissionStatus(ctx, &rec, models.CommissionPending)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetCommission(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionApproved, got.Status)
}

func TestListMaturedCommissions(t *testing.T) {
	store := New()
	ctx := context.Background()

	due := commission("s-1", "A", models.CommissionPending, now.Add(-time.Hour))
	dueLater := commission("s-2", "A", models.CommissionPending, now)
	future := commission("s-3", "A", models.CommissionPending, now.Add(time.Hour))
	approved := commission("s-4", "A", models.CommissionApproved, now.Add(-time.Hour))
	require.NoError(t, store.CreateCommissions(ctx, []models.CommissionRecord{future, dueLater, approved, due}))

	got, err := store.ListMaturedCommissions(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, dueLater.ID, got[1].ID)

	got, err = store.ListMaturedCommissions(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEscrowRecordsAreUniquePerSale(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec := &models.EscrowRecord{ID: uuid.New(), SaleID: "s-1", PropertySeriesID: "villa-1", Status: models.EscrowHeld, HeldAt: now}
	require.NoError(t, store.CreateEscrowRecord(ctx, rec))

	dup := &models.EscrowRecord{ID: uuid.New(), SaleID: "s-1", PropertySeriesID: "villa-1", Status: models.EscrowHeld, HeldAt: now}
	assert.True(t, apperrors.IsPersistence(store.CreateEscrowRecord(ctx, dup)))

	released, err := store.ReleaseHeldEscrow(ctx, "villa-1", now, "system")
	require.NoError(t, err)
	require.Len(t, released, 1)

	again, err := store.ReleaseHeldEscrow(ctx, "villa-1", now, "system")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestIntermediaryLookup(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.UpsertIntermediary(ctx, &models.Intermediary{ID: "A", ReferralCode: "CODE-A", Active: true}))

	byCode, err := store.GetIntermediaryByCode(ctx, "CODE-A")
	require.NoError(t, err)
	assert.Equal(t, "A", byCode.ID)

	_, err = store.GetIntermediary(ctx, "B")
	assert.True(t, apperrors.IsNotFound(err))
}
