// Package sqliteimpl stores ledger records in a single SQLite table.
//
// The database runs in WAL mode with one open connection, so every Update is a
// serialised read-modify-write and InTx gives real multi-record atomicity.
package sqliteimpl

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"social-ledger/ledger"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - records table
const currentSchemaVersion = 1

type SQLiteStore struct {
	db *sql.DB
}

var (
	_ ledger.Store      = (*SQLiteStore)(nil)
	_ ledger.Transactor = (*SQLiteStore)(nil)
)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	return createRecord(ctx, s.db, key, data)
}

func (s *SQLiteStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	return readRecord(ctx, s.db, key)
}

func (s *SQLiteStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	return s.InTx(ctx, func(tx ledger.Store) error {
		return tx.Update(ctx, key, fn)
	})
}

// InTx commits everything fn wrote through tx, or nothing if fn fails.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ledger.ErrStorage, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ledger.ErrStorage, err)
	}
	return nil
}

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func createRecord(ctx context.Context, q querier, key ledger.Key, data []byte) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO records (key, kind, version, data)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO NOTHING
	`, string(key), string(key.Kind()), data)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ledger.ErrStorage, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: create %s: rows affected: %v", ledger.ErrStorage, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, key)
	}
	return nil
}

func readRecord(ctx context.Context, q querier, key ledger.Key) (ledger.Record, error) {
	rec := ledger.Record{Key: key}
	var version int64
	err := q.QueryRowContext(ctx, `SELECT version, data FROM records WHERE key = ?`, string(key)).
		Scan(&version, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: read %s: %v", ledger.ErrStorage, key, err)
	}
	rec.Version = uint64(version)
	return rec, nil
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) CreateIfAbsent(ctx context.Context, key ledger.Key, data []byte) error {
	return createRecord(ctx, t.tx, key, data)
}

func (t *txStore) Read(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	return readRecord(ctx, t.tx, key)
}

func (t *txStore) Update(ctx context.Context, key ledger.Key, fn ledger.Mutator) error {
	rec, err := readRecord(ctx, t.tx, key)
	if err != nil {
		return err
	}
	next, err := fn(rec.Data)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE records SET data = ?, version = version + 1
		WHERE key = ? AND version = ?
	`, next, string(key), int64(rec.Version))
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ledger.ErrStorage, key, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("%w: update %s: version moved", ledger.ErrConflict, key)
	}
	return nil
}

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Close() error { return nil }
