// Package store is the relational persistence layer: transactional block
// ingestion, bulk row operations, and the rewind path reorgs drive. It is
// backed by Postgres via pgx/v5; schema is managed by golang-migrate
// migrations under /migrations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
)

// Store owns the connection pool. One Store is shared by the Projector
// (single writer) and any read-only callers (SyncController, ReorgDetector).
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to Postgres at dsn and verifies connectivity.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Store{pool: pool, log: log.With().Str("component", "store").Logger()}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Tx is a single ingestion or rewind unit of work. All multi-row mutations
// happen inside a Tx; the caller must call Commit or Rollback exactly once.
type Tx struct {
	pgx pgx.Tx
}

// Begin starts a new transaction. Isolation is the Postgres default
// (read committed), which is sufficient since the Projector is the only
// writer in flight at any time (spec: single-writer serialization).
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	pt, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{pgx: pt}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.pgx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Calling Rollback after a successful
// Commit is a no-op error from pgx and is swallowed, matching the
// defer tx.Rollback() idiom.
func (t *Tx) Rollback(ctx context.Context) {
	if err := t.pgx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		// best-effort: the transaction is already gone or the connection
		// dropped, nothing further to do.
		_ = err
	}
}

func wrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ierr.ErrNotFound
	}
	return err
}
