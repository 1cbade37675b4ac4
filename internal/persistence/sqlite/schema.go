package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type migration struct {
	version    string
	statements []string
}

// migrations are applied in order and recorded in schema_migrations.
var migrations = []migration{
	{
		version: "0001_documents",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS documents (
				name TEXT PRIMARY KEY,
				body BLOB NOT NULL,
				version INTEGER NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	},
}

// Migrate creates the version table and applies pending migrations, each in
// its own transaction.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := cp.isApplied(ctx, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		started := time.Now()
		err = cp.WithTransaction(ctx, func(tx *sql.Tx) error {
			for i, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %s statement %d: %w", m.version, i+1, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at, execution_time_ms) VALUES (?, ?, ?)`,
				m.version, time.Now().UTC().Format(time.RFC3339), time.Since(started).Milliseconds(),
			)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (cp *ConnectionPool) isApplied(ctx context.Context, version string) (bool, error) {
	var exists int
	err := cp.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ? LIMIT 1`, version).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return true, nil
}
