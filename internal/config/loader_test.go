package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"EVENTPOLL_HTTP_PORT",
	"EVENTPOLL_STORAGE",
	"EVENTPOLL_SQLITE_DSN",
	"EVENTPOLL_GITHUB_TOKEN",
	"EVENTPOLL_GITHUB_OWNER",
	"EVENTPOLL_GITHUB_REPO",
	"EVENTPOLL_GITHUB_BRANCH",
	"EVENTPOLL_EVENTS_PATH",
	"EVENTPOLL_USERS_PATH",
	"EVENTPOLL_STORAGE_RETRIES",
	"EVENTPOLL_STORAGE_RETRY_DELAY",
	"EVENTPOLL_SYNC_SECRET",
	"EVENTPOLL_SYNC_SCHEDULE",
	"EVENTPOLL_MYHELSINKI_URL",
	"EVENTPOLL_CURATED_EVENTS_FILE",
	"EVENTPOLL_EXTERNAL_CACHE_TTL",
	"EVENTPOLL_EVENTS_PER_MONTH",
	"EVENTPOLL_CREATE_COOLDOWN",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		// register restore, then unset
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		const secret = "super-secret"
		t.Setenv("EVENTPOLL_SYNC_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 || cfg.Addr() != ":8080" {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Storage != StorageMemory {
			t.Fatalf("expected memory storage by default, got %q", cfg.Storage)
		}
		if cfg.SQLiteDSN != "file:eventpoll.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.StorageRetries != 3 || cfg.StorageRetryDelay != 500*time.Millisecond {
			t.Fatalf("unexpected retry defaults: %d, %s", cfg.StorageRetries, cfg.StorageRetryDelay)
		}
		if cfg.SyncSchedule != "0 0 1 * *" || cfg.ExternalCacheTTL != 6*time.Hour {
			t.Fatalf("unexpected sync defaults: %q, %s", cfg.SyncSchedule, cfg.ExternalCacheTTL)
		}
		if cfg.EventsPerMonth != 10 || cfg.CreateCooldown != 5*time.Minute {
			t.Fatalf("unexpected rate limit defaults: %d, %s", cfg.EventsPerMonth, cfg.CreateCooldown)
		}
		if cfg.SyncSecret != secret {
			t.Fatalf("expected sync secret to be %q, got %q", secret, cfg.SyncSecret)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "missing required environment variables: EVENTPOLL_SYNC_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("github storage requires repository coordinates", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EVENTPOLL_SYNC_SECRET", "secret-value")
		t.Setenv("EVENTPOLL_STORAGE", "GitHub")
		t.Setenv("EVENTPOLL_GITHUB_OWNER", "turku-community")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for incomplete github settings")
		}
		expected := "missing required environment variables: EVENTPOLL_GITHUB_REPO, EVENTPOLL_GITHUB_TOKEN"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EVENTPOLL_SYNC_SECRET", "secret-value")
		t.Setenv("EVENTPOLL_HTTP_PORT", "9090")
		t.Setenv("EVENTPOLL_STORAGE", "sqlite")
		t.Setenv("EVENTPOLL_SQLITE_DSN", "file:/tmp/eventpoll.db")
		t.Setenv("EVENTPOLL_STORAGE_RETRY_DELAY", "0s")
		t.Setenv("EVENTPOLL_EXTERNAL_CACHE_TTL", "30m")
		t.Setenv("EVENTPOLL_EVENTS_PER_MONTH", "3")
		t.Setenv("EVENTPOLL_CREATE_COOLDOWN", "0")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.Storage != StorageSQLite || cfg.SQLiteDSN != "file:/tmp/eventpoll.db" {
			t.Fatalf("unexpected storage config %+v", cfg)
		}
		if cfg.StorageRetryDelay != 0 || cfg.ExternalCacheTTL != 30*time.Minute {
			t.Fatalf("unexpected durations: %s, %s", cfg.StorageRetryDelay, cfg.ExternalCacheTTL)
		}
		if cfg.EventsPerMonth != 3 || cfg.CreateCooldown != 0 {
			t.Fatalf("unexpected rate limits: %d, %s", cfg.EventsPerMonth, cfg.CreateCooldown)
		}
	})

	t.Run("aggregates invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EVENTPOLL_SYNC_SECRET", "secret-value")
		t.Setenv("EVENTPOLL_HTTP_PORT", "eighty")
		t.Setenv("EVENTPOLL_STORAGE", "s3")
		t.Setenv("EVENTPOLL_EXTERNAL_CACHE_TTL", "-1h")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		for _, key := range []string{"EVENTPOLL_HTTP_PORT", "EVENTPOLL_STORAGE", "EVENTPOLL_EXTERNAL_CACHE_TTL"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in %q", key, err.Error())
			}
		}
	})
}
