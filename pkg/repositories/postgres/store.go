package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	salesTable          = "sales"
	commissionsTable    = "commission_records"
	escrowTable         = "escrow_records"
	seriesTable         = "property_series"
	intermediariesTable = "intermediaries"
	auditTable          = "audit_log"
)

// Store implements repositories.Store on postgres. Writes join the
// transaction carried by ctx when there is one.
type Store struct {
	db     database.DB
	tx     *database.SQLTransactor
	logger ectologger.Logger
}

var _ repositories.Store = (*Store)(nil)

func New(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:     db,
		tx:     database.NewTransactor(db, logger),
		logger: logger,
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.tx.InTx(ctx, fn)
	if err == nil || isDomainError(err) {
		return err
	}
	// begin and commit failures surface untyped from the transactor
	return apperrors.NewPersistenceError("transaction", err)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.Ping")
	defer span.End()

	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewPersistenceError("ping", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) database.Queryer {
	return database.Conn(ctx, s.db)
}

func (s *Store) failed(ctx context.Context, op string, err error, fields map[string]any) error {
	s.logger.WithContext(ctx).WithError(err).WithFields(fields).Errorf("failed to %s", op)
	return apperrors.NewPersistenceError(op, err)
}

func (s *Store) get(ctx context.Context, dest any, kind, id, query string, args ...any) error {
	err := s.conn(ctx).GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound(kind, id)
	}
	if err != nil {
		return s.failed(ctx, "get "+kind, err, map[string]any{"id": id})
	}
	return nil
}

func isDomainError(err error) bool {
	_, ok := apperrors.ToHTTPError(err)
	return ok
}
