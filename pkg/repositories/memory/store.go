package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/google/uuid"
)

// Store is an in-memory repositories.Store. A transaction keeps an undo log
// that is replayed on failure. Row locks are not modelled: transactions run
// one at a time, and reads outside InTx may see a transaction's partial writes.
type Store struct {
	txMu           sync.Mutex
	mu             sync.RWMutex
	sales          map[string]models.Sale
	commissions    map[uuid.UUID]models.CommissionRecord
	escrow         map[uuid.UUID]models.EscrowRecord
	series         map[string]models.PropertySeries
	intermediaries map[string]models.Intermediary
	audit          []models.AuditEntry
	failures       map[string]error
}

var _ repositories.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sales:          make(map[string]models.Sale),
		commissions:    make(map[uuid.UUID]models.CommissionRecord),
		escrow:         make(map[uuid.UUID]models.EscrowRecord),
		series:         make(map[string]models.PropertySeries),
		intermediaries: make(map[string]models.Intermediary),
		failures:       make(map[string]error),
	}
}

type txKey struct{}

type tx struct {
	undo []func()
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// FailOn makes the next call to op return a PersistenceError wrapping err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// fail must be called with s.mu held.
func (s *Store) fail(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return apperrors.NewPersistenceError(op, err)
}

// onRollback must be called with s.mu held.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateSale"); err != nil {
		return err
	}
	if _, ok := s.sales[sale.SaleID]; ok {
		return apperrors.NewPersistenceError("create sale", errDuplicate(sale.SaleID))
	}
	s.sales[sale.SaleID] = *sale
	s.onRollback(ctx, func() { delete(s.sales, sale.SaleID) })
	return nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[saleID]
	if !ok {
		return nil, apperrors.NewNotFound("sale", saleID)
	}
	return &sale, nil
}

func (s *Store) CreateCommissions(ctx context.Context, records []models.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateCommissions"); err != nil {
		return err
	}
	for _, r := range records {
		if _, ok := s.commissions[r.ID]; ok {
			return apperrors.NewPersistenceError("create commissions", errDuplicate(r.ID.String()))
		}
	}
	for _, r := range records {
		id := r.ID
		s.commissions[id] = r
		s.onRollback(ctx, func() { delete(s.commissions, id) })
	}
	return nil
}

func (s *Store) GetCommission(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.commissions[id]
	if !ok {
		return nil, apperrors.NewNotFound("commission", id.String())
	}
	return &rec, nil
}

func (s *Store) ListCommissionsBySale(ctx context.Context, saleID string, forUpdate bool) ([]models.CommissionRecord, error) {
	out := s.filterCommissions(func(r models.CommissionRecord) bool { return r.SaleID == saleID })
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (s *Store) ListCommissionsByBeneficiary(ctx context.Context, beneficiaryID string) ([]models.CommissionRecord, error) {
	out := s.filterCommissions(func(r models.CommissionRecord) bool { return r.BeneficiaryID == beneficiaryID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SaleID < out[j].SaleID
	})
	return out, nil
}

func (s *Store) ListMaturedCommissions(ctx context.Context, now time.Time, limit int) ([]models.CommissionRecord, error) {
	s.mu.Lock()
	err := s.fail("ListMaturedCommissions")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := s.filterCommissions(func(r models.CommissionRecord) bool {
		return r.Status == models.CommissionPending && !r.HoldUntil.After(now)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].HoldUntil.Equal(out[j].HoldUntil) {
			return out[i].HoldUntil.Before(out[j].HoldUntil)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateCommissionStatus(ctx context.Context, rec *models.CommissionRecord, from models.CommissionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateCommissionStatus"); err != nil {
		return false, err
	}
	current, ok := s.commissions[rec.ID]
	if !ok || current.Status != from {
		return false, nil
	}
	s.commissions[rec.ID] = *rec
	s.onRollback(ctx, func() { s.commissions[current.ID] = current })
	return true, nil
}

func (s *Store) filterCommissions(keep func(models.CommissionRecord) bool) []models.CommissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.CommissionRecord{}
	for _, r := range s.commissions {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) CreateEscrowRecord(ctx context.Context, rec *models.EscrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateEscrowRecord"); err != nil {
		return err
	}
	for _, existing := range s.escrow {
		if existing.SaleID == rec.SaleID {
			return apperrors.NewPersistenceError("create escrow record", errDuplicate(rec.SaleID))
		}
	}
	s.escrow[rec.ID] = *rec
	id := rec.ID
	s.onRollback(ctx, func() { delete(s.escrow, id) })
	return nil
}

func (s *Store) GetEscrowRecord(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.EscrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.escrow[id]
	if !ok {
		return nil, apperrors.NewNotFound("escrow record", id.String())
	}
	return &rec, nil
}

func (s *Store) GetEscrowRecordBySale(ctx context.Context, saleID string, forUpdate bool) (*models.EscrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.escrow {
		if rec.SaleID == saleID {
			return &rec, nil
		}
	}
	return nil, apperrors.NewNotFound("escrow record for sale", saleID)
}

func (s *Store) ListEscrowRecordsBySeries(ctx context.Context, seriesID string) ([]models.EscrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.EscrowRecord{}
	for _, rec := range s.escrow {
		if rec.PropertySeriesID == seriesID {
			out = append(out, rec)
		}
	}
	sortEscrow(out)
	return out, nil
}

func (s *Store) ReleaseHeldEscrow(ctx context.Context, seriesID string, at time.Time, actor string) ([]models.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReleaseHeldEscrow"); err != nil {
		return nil, err
	}

	released := []models.EscrowRecord{}
	for id, rec := range s.escrow {
		if rec.PropertySeriesID != seriesID || rec.Status != models.EscrowHeld {
			continue
		}
		before := rec
		rec.Status = models.EscrowReleased
		rec.ReleasedAt = &at
		rec.ReleasedBy = actor
		s.escrow[id] = rec
		s.onRollback(ctx, func() { s.escrow[before.ID] = before })
		released = append(released, rec)
	}
	sortEscrow(released)
	return released, nil
}

func (s *Store) UpdateEscrowStatus(ctx context.Context, rec *models.EscrowRecord, from models.EscrowStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateEscrowStatus"); err != nil {
		return false, err
	}
	current, ok := s.escrow[rec.ID]
	if !ok || current.Status != from {
		return false, nil
	}
	s.escrow[rec.ID] = *rec
	s.onRollback(ctx, func() { s.escrow[current.ID] = current })
	return true, nil
}

func sortEscrow(records []models.EscrowRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].HeldAt.Equal(records[j].HeldAt) {
			return records[i].HeldAt.Before(records[j].HeldAt)
		}
		return records[i].SaleID < records[j].SaleID
	})
}

func (s *Store) CreateSeries(ctx context.Context, series *models.PropertySeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateSeries"); err != nil {
		return err
	}
	if _, ok := s.series[series.SeriesID]; ok {
		return apperrors.NewPersistenceError("create series", errDuplicate(series.SeriesID))
	}
	s.series[series.SeriesID] = *series
	id := series.SeriesID
	s.onRollback(ctx, func() { delete(s.series, id) })
	return nil
}

func (s *Store) GetSeries(ctx context.Context, seriesID string, forUpdate bool) (*models.PropertySeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[seriesID]
	if !ok {
		return nil, apperrors.NewNotFound("series", seriesID)
	}
	return &series, nil
}

func (s *Store) UpdateSeries(ctx context.Context, series *models.PropertySeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateSeries"); err != nil {
		return err
	}
	current, ok := s.series[series.SeriesID]
	if !ok {
		return apperrors.NewNotFound("series", series.SeriesID)
	}
	s.series[series.SeriesID] = *series
	s.onRollback(ctx, func() { s.series[current.SeriesID] = current })
	return nil
}

func (s *Store) UpsertIntermediary(ctx context.Context, m *models.Intermediary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.intermediaries[m.ID]
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.intermediaries[m.ID] = *m
	s.onRollback(ctx, func() {
		if existed {
			s.intermediaries[previous.ID] = previous
			return
		}
		delete(s.intermediaries, m.ID)
	})
	return nil
}

func (s *Store) GetIntermediary(ctx context.Context, id string) (*models.Intermediary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.intermediaries[id]
	if !ok {
		return nil, apperrors.NewNotFound("intermediary", id)
	}
	return &m, nil
}

func (s *Store) GetIntermediaryByCode(ctx context.Context, code string) (*models.Intermediary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.intermediaries {
		if m.ReferralCode == code {
			return &m, nil
		}
	}
	return nil, apperrors.NewNotFound("referral code", code)
}

func (s *Store) AppendAudit(ctx context.Context, entries ...models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AppendAudit"); err != nil {
		return err
	}
	added := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		added[e.ID] = true
	}
	s.audit = append(s.audit, entries...)
	s.onRollback(ctx, func() {
		kept := s.audit[:0]
		for _, e := range s.audit {
			if !added[e.ID] {
				kept = append(kept, e)
			}
		}
		s.audit = kept
	})
	return nil
}

func (s *Store) ListAudit(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.AuditEntry{}
	for _, e := range s.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type duplicateError string

func (d duplicateError) Error() string {
	return "duplicate key " + string(d)
}

func errDuplicate(key string) error {
	return duplicateError(key)
}
