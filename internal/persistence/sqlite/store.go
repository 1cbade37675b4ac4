package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/community-events/internal/persistence"
)

// Store implements persistence.DocumentStore. Versions are row counters that
// increase by one on every successful put.
type Store struct {
	pool *ConnectionPool
	now  func() time.Time
}

// Open connects to the database described by config and applies migrations.
func Open(ctx context.Context, config Config) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get returns the named document, or an empty Document when it is missing.
func (s *Store) Get(ctx context.Context, name string) (persistence.Document, error) {
	var (
		body    []byte
		version int64
	)
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT body, version FROM documents WHERE name = ?`, name,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Document{}, nil
	}
	if err != nil {
		return persistence.Document{}, mapError(err)
	}
	return persistence.Document{Body: body, Version: strconv.FormatInt(version, 10)}, nil
}

// Put writes body if the stored version still equals expectedVersion.
func (s *Store) Put(ctx context.Context, name string, body []byte, expectedVersion string) (string, error) {
	updatedAt := s.now().UTC().Format(time.RFC3339Nano)

	if expectedVersion == "" {
		result, err := s.pool.DB().ExecContext(ctx, `
			INSERT INTO documents (name, body, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(name) DO NOTHING`,
			name, body, updatedAt,
		)
		if err != nil {
			return "", mapError(err)
		}
		if err := requireRow(result); err != nil {
			return "", err
		}
		return "1", nil
	}

	expected, err := strconv.ParseInt(expectedVersion, 10, 64)
	if err != nil {
		return "", fmt.Errorf("sqlite: invalid version %q: %w", expectedVersion, persistence.ErrConflict)
	}

	var next int64
	err = s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET body = ?, version = version + 1, updated_at = ?
			WHERE name = ? AND version = ?`,
			body, updatedAt, name, expected,
		)
		if err != nil {
			return mapError(err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE name = ?`, name).Scan(&next)
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(next, 10), nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return persistence.ErrConflict
	}
	return nil
}

// mapError maps SQLite driver errors to persistence errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%v: %w", err, persistence.ErrConflict)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return fmt.Errorf("%v: %w", err, persistence.ErrConflict)
	}
	return err
}
