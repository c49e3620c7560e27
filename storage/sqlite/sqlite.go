// Package sqlite implements storage.Repository on an embedded SQLite
// database using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jmcleod/quill/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store implements storage.Repository backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Repository = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection serialises writers, which keeps Batch read-modify-write atomic.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Put(ctx context.Context, namespace, recordType, recordID string, record *storage.Record) error {
	return putRecord(ctx, s.db, namespace, recordType, recordID, record)
}

func (s *Store) Get(ctx context.Context, namespace, recordType, recordID string) (*storage.Record, error) {
	return getRecord(ctx, s.db, namespace, recordType, recordID)
}

func (s *Store) List(ctx context.Context, namespace, recordType string) ([]string, error) {
	return listRecords(ctx, s.db, namespace, recordType)
}

func (s *Store) Delete(ctx context.Context, namespace, recordType, recordID string) error {
	return deleteRecord(ctx, s.db, namespace, recordType, recordID)
}

func (s *Store) PutCAS(ctx context.Context, namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return putCAS(ctx, tx, namespace, recordType, recordID, expectedVersion, record)
	})
}

func (s *Store) Batch(ctx context.Context, namespace string, fn func(tx storage.BatchTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqliteBatchTx{ctx: ctx, tx: tx, namespace: namespace})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return tx.Commit()
}

type sqliteBatchTx struct {
	ctx       context.Context
	tx        *sql.Tx
	namespace string
}

func (btx *sqliteBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	return getRecord(btx.ctx, btx.tx, btx.namespace, recordType, recordID)
}

func (btx *sqliteBatchTx) List(recordType string) ([]string, error) {
	return listRecords(btx.ctx, btx.tx, btx.namespace, recordType)
}

func (btx *sqliteBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	return putRecord(btx.ctx, btx.tx, btx.namespace, recordType, recordID, record)
}

func (btx *sqliteBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCAS(btx.ctx, btx.tx, btx.namespace, recordType, recordID, expectedVersion, record)
}

func (btx *sqliteBatchTx) Delete(recordType, recordID string) error {
	return deleteRecord(btx.ctx, btx.tx, btx.namespace, recordType, recordID)
}

func putRecord(ctx context.Context, q querier, namespace, recordType, recordID string, record *storage.Record) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO records (namespace, record_type, record_id, data, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (namespace, record_type, record_id)
		 DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = CURRENT_TIMESTAMP`,
		namespace, recordType, recordID, record.Data, int64(record.Version))
	return err
}

func getRecord(ctx context.Context, q querier, namespace, recordType, recordID string) (*storage.Record, error) {
	var (
		rec     storage.Record
		version int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT data, version FROM records WHERE namespace = ? AND record_type = ? AND record_id = ?`,
		namespace, recordType, recordID).Scan(&rec.Data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Version = uint64(version)
	return &rec, nil
}

func listRecords(ctx context.Context, q querier, namespace, recordType string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT record_id FROM records WHERE namespace = ? AND record_type = ? ORDER BY record_id`,
		namespace, recordType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deleteRecord(ctx context.Context, q querier, namespace, recordType, recordID string) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND record_type = ? AND record_id = ?`,
		namespace, recordType, recordID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

func putCAS(ctx context.Context, q querier, namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	existing, err := getRecord(ctx, q, namespace, recordType, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		return putRecord(ctx, q, namespace, recordType, recordID, record)
	}
	if err != nil {
		return err
	}
	if expectedVersion == 0 || existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	return putRecord(ctx, q, namespace, recordType, recordID, record)
}
