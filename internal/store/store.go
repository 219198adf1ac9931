// Package store is the PostgreSQL persistence layer. Functions take a querier so the same
// SQL runs against the pool or inside a transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/orders"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     *sql.DB
	txOpts database.TxOptions
}

func New(db *sql.DB) *Store {
	return &Store{db: db, txOpts: database.DefaultTxOptions()}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn in a read-committed transaction and repeats it on deadlock or
// serialization failure.
func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.TxStore) error) error {
	return database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

// txStore binds the store functions to one transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Savepoint(ctx context.Context, name string, fn func() error) error {
	return database.Savepoint(ctx, t.tx, name, fn)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
