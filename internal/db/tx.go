package db

import (
	"context"
	"database/sql"
	"fmt"

	"warimas-checkout/internal/logger"

	"go.uber.org/zap"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *Tx so repositories can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Tx wraps *sql.Tx with hooks that only run once the commit succeeded.
type Tx struct {
	*sql.Tx
	afterCommit []func()
}

// AfterCommit registers fn to run after a successful commit. It never runs on rollback.
func (tx *Tx) AfterCommit(fn func()) {
	tx.afterCommit = append(tx.afterCommit, fn)
}

// RunInTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func RunInTx(ctx context.Context, conn TxBeginner, fn func(tx *Tx) error) error {
	log := logger.FromCtx(ctx)

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{Tx: sqlTx}

	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Error("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	for _, hook := range tx.afterCommit {
		hook()
	}
	return nil
}
