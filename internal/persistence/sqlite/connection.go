// Package sqlite stores versioned JSON documents in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config holds SQLite connection settings.
type Config struct {
	// DSN is a file path or a "file:" URI.
	DSN string

	// BusyTimeout sets how long to wait for database locks.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	// MaxOpenConns caps the pool. Pragmas are per connection, so the
	// default is a single connection.
	MaxOpenConns int
}

// DefaultConfig returns settings suitable for a single server process.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:          dsn,
		BusyTimeout:  5 * time.Second,
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		MaxOpenConns: 1,
	}
}

// ConnectionPool wraps the database handle with transaction helpers.
type ConnectionPool struct {
	db     *sql.DB
	config Config
}

// NewConnectionPool opens and configures the database.
func NewConnectionPool(ctx context.Context, config Config) (*ConnectionPool, error) {
	if strings.TrimSpace(config.DSN) == "" {
		return nil, fmt.Errorf("sqlite: dsn is required")
	}
	if err := ensureDirectory(config.DSN); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	pool := &ConnectionPool{db: db, config: config}
	if err := pool.configure(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure SQLite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return pool, nil
}

func (cp *ConnectionPool) configure(ctx context.Context) error {
	pragmas := []string{}
	if cp.config.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cp.config.BusyTimeout.Milliseconds()))
	}
	if cp.config.JournalMode != "" && !isMemoryDSN(cp.config.DSN) {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode = %s", cp.config.JournalMode))
	}
	if cp.config.Synchronous != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA synchronous = %s", cp.config.Synchronous))
	}
	for _, pragma := range pragmas {
		if _, err := cp.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// DB returns the underlying database connection.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Close closes the connection pool.
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (cp *ConnectionPool) Ping(ctx context.Context) error {
	return cp.db.PingContext(ctx)
}

// TransactionFunc represents a function that executes within a transaction.
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction runs fn in a transaction, rolling back when it fails.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func ensureDirectory(dsn string) error {
	if isMemoryDSN(dsn) {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
