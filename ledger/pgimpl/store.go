// Package pgimpl stores ledger records in PostgreSQL through a pgx pool.
// Updates lock the row with SELECT ... FOR UPDATE inside a transaction.
package pgimpl

import (
	"context"
	"errors"
	"fmt"

	"social-ledger/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	key     TEXT   PRIMARY KEY,
	kind    TEXT   NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	data    BYTEA  NOT NULL
)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ ledger.Store      = (*PostgresStore)(nil)
	_ ledger.Transactor = (*PostgresStore)(nil)
)

// Open connects to dsn and makes sure the records table exists.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 64
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Truncate removes every record. Tests use it to start from an empty table.
func (s *PostgresStore) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE records`)
	return err
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	return createRecord(ctx, s.pool, key, data)
}

func (s *PostgresStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	return readRecord(ctx, s.pool, key, false)
}

func (s *PostgresStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	return s.InTx(ctx, func(tx ledger.Store) error {
		return tx.Update(ctx, key, fn)
	})
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		fnErr = fn(&txStore{tx: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("%w: transaction: %v", ledger.ErrStorage, err)
	}
	return nil
}

// querier is what *pgxpool.Pool and pgx.Tx have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createRecord(ctx context.Context, q querier, key ledger.Key, data []byte) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO records (key, kind, version, data)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (key) DO NOTHING
	`, string(key), string(key.Kind()), data)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ledger.ErrStorage, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, key)
	}
	return nil
}

func readRecord(ctx context.Context, q querier, key ledger.Key, forUpdate bool) (ledger.Record, error) {
	query := `SELECT version, data FROM records WHERE key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec := ledger.Record{Key: key}
	var version int64
	err := q.QueryRow(ctx, query, string(key)).Scan(&version, &rec.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: read %s: %v", ledger.ErrStorage, key, err)
	}
	rec.Version = uint64(version)
	return rec, nil
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	return createRecord(ctx, t.tx, key, data)
}

func (t *txStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	return readRecord(ctx, t.tx, key, false)
}

func (t *txStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	rec, err := readRecord(ctx, t.tx, key, true)
	if err != nil {
		return err
	}
	next, err := fn(rec.Data)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE records SET data = $1, version = version + 1 WHERE key = $2`, next, string(key))
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ledger.ErrStorage, key, err)
	}
	return nil
}

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Close() error { return nil }
