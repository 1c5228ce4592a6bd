package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
)

// Transactor runs fn inside a unit of work. Nested calls join the outer one.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type SQLTransactor struct {
	db     DB
	logger ectologger.Logger
	opts   *sql.TxOptions
}

func NewTransactor(db DB, logger ectologger.Logger) *SQLTransactor {
	return &SQLTransactor{
		db:     db,
		logger: logger,
		opts:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
}

func (t *SQLTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	ctx, tx, err := t.db.GetTx(ctx, t.opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.logger.WithContext(ctx).WithError(rbErr).Warn("rollback after failed unit of work")
		}
		return err
	}

	return tx.Commit(ctx)
}
