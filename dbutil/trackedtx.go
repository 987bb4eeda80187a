package dbutil

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"
)

// Tx is a transaction that rolls itself back unless it was committed.
// The usual shape is
//
//	tx, err := dbutil.NewTx(ctx, db, nil)
//	...
//	defer tx.MaybeRollback()
//	... tx.Exec ...
//	return tx.Commit()
type Tx struct {
	tx *sql.Tx
}

func NewTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// MaybeRollback rolls back if Commit hasn't succeeded.  Safe to defer.
func (tt *Tx) MaybeRollback() {
	if tt.tx != nil {
		if err := tt.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Warnf("rollback failed: %v", err)
		}
		tt.tx = nil
	}
}

func (tt *Tx) Commit() error {
	err := tt.tx.Commit()
	if err == nil {
		tt.tx = nil
	}
	return err
}

func (tt *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tt.tx.QueryRowContext(ctx, query, args...)
}

func (tt *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tt.tx.QueryContext(ctx, query, args...)
}

func (tt *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tt.tx.ExecContext(ctx, query, args...)
}

// ExecAll runs each statement in order and stops at the first error.
func (tt *Tx) ExecAll(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tt.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
