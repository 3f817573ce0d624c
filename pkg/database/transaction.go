package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txKey = txContextKey("tx")

// Tx is the transaction surface repositories use. Rollback after Commit is
// a no-op, so callers can unconditionally defer it.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

// Transaction wraps sqlx.Tx with closed-state tracking. When a transaction
// already lives in the context, GetTx hands it back instead of opening a
// nested one; only the outermost opener settles it.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	closed bool
	owned  bool
}

// GetTx returns the transaction carried by the context, or opens a new one
// and stores it. The returned context must flow to every statement that
// should share the transaction.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing, ok := ctx.Value(txKey).(*Transaction); ok && !existing.closed {
		// Participant view: Commit and Rollback defer to the opener.
		return ctx, &Transaction{Tx: existing.Tx, logger: logger}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	opened := &Transaction{Tx: tx, logger: logger, owned: true}
	return context.WithValue(ctx, txKey, opened), opened, nil
}

// Rollback aborts the transaction unless it was already committed or this
// is a participant of an outer transaction.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.closed || !t.owned {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to roll back transaction")
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}

	t.closed = true
	return nil
}

// Commit settles the transaction when called by its opener.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.closed || !t.owned {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.closed = true
	return nil
}
