package postgres

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL holds the single records table every quill namespace (posts,
// projects, categories, users, the audit trail and persisted login
// windows) is stored in.
//
//go:embed schema.sql
var schemaSQL string

// schemaLockKey serialises schema setup between quill instances that
// start against the same database at once.
const schemaLockKey int64 = 0x7175696c6c // "quill"

// EnsureSchema creates the records table and its index if they do not
// exist. It runs on every startup under a transaction-scoped advisory lock.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", schemaLockKey); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, schemaSQL)
		return err
	})
}
