package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/community-events/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// document store for integration-style tests.
type SQLiteHarness struct {
	*Repositories
	DB *sqlite.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "eventpoll.db")
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Repositories: NewRepositories(store, nil),
		DB:           store,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
