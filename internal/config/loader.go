package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable with EVENTPOLL_STORAGE.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageGitHub = "github"
)

// Config captures environment driven configuration values for the event poll service.
type Config struct {
	HTTPPort int
	Storage  string

	SQLiteDSN string

	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string

	EventsPath        string
	UsersPath         string
	StorageRetries    int
	StorageRetryDelay time.Duration

	SyncSecret   string
	SyncSchedule string

	MyHelsinkiURL    string
	CuratedFile      string
	ExternalCacheTTL time.Duration

	EventsPerMonth int
	CreateCooldown time.Duration
}

// Load parses configuration values from the current process environment.
//
// A .env file in the working directory is read first when present; variables
// already set in the environment win. Missing and invalid keys are reported
// together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := Config{
		HTTPPort:          8080,
		Storage:           StorageMemory,
		SQLiteDSN:         "file:eventpoll.db",
		EventsPath:        "data/events.json",
		UsersPath:         "data/users.json",
		StorageRetries:    3,
		StorageRetryDelay: 500 * time.Millisecond,
		SyncSchedule:      "0 0 1 * *",
		MyHelsinkiURL:     "https://open-api.myhelsinki.fi/v1/events/",
		ExternalCacheTTL:  6 * time.Hour,
		EventsPerMonth:    10,
		CreateCooldown:    5 * time.Minute,
	}

	missing := make([]string, 0, 4)
	invalid := make([]string, 0, 4)

	positiveInt := func(key string, target *int, allowZero bool) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || (n == 0 && !allowZero) {
			invalid = append(invalid, key)
			return
		}
		*target = n
	}
	duration := func(key string, target *time.Duration, allowZero bool) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 || (d == 0 && !allowZero) {
			invalid = append(invalid, key)
			return
		}
		*target = d
	}
	str := func(key string, target *string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}

	positiveInt("EVENTPOLL_HTTP_PORT", &cfg.HTTPPort, false)

	str("EVENTPOLL_STORAGE", &cfg.Storage)
	cfg.Storage = strings.ToLower(cfg.Storage)
	switch cfg.Storage {
	case StorageMemory, StorageSQLite, StorageGitHub:
	default:
		invalid = append(invalid, "EVENTPOLL_STORAGE")
	}

	str("EVENTPOLL_SQLITE_DSN", &cfg.SQLiteDSN)
	str("EVENTPOLL_GITHUB_TOKEN", &cfg.GitHubToken)
	str("EVENTPOLL_GITHUB_OWNER", &cfg.GitHubOwner)
	str("EVENTPOLL_GITHUB_REPO", &cfg.GitHubRepo)
	str("EVENTPOLL_GITHUB_BRANCH", &cfg.GitHubBranch)
	if cfg.Storage == StorageGitHub {
		for key, value := range map[string]string{
			"EVENTPOLL_GITHUB_TOKEN": cfg.GitHubToken,
			"EVENTPOLL_GITHUB_OWNER": cfg.GitHubOwner,
			"EVENTPOLL_GITHUB_REPO":  cfg.GitHubRepo,
		} {
			if value == "" {
				missing = append(missing, key)
			}
		}
	}

	str("EVENTPOLL_EVENTS_PATH", &cfg.EventsPath)
	str("EVENTPOLL_USERS_PATH", &cfg.UsersPath)
	positiveInt("EVENTPOLL_STORAGE_RETRIES", &cfg.StorageRetries, false)
	duration("EVENTPOLL_STORAGE_RETRY_DELAY", &cfg.StorageRetryDelay, true)

	if secret := strings.TrimSpace(os.Getenv("EVENTPOLL_SYNC_SECRET")); secret == "" {
		missing = append(missing, "EVENTPOLL_SYNC_SECRET")
	} else {
		cfg.SyncSecret = secret
	}
	str("EVENTPOLL_SYNC_SCHEDULE", &cfg.SyncSchedule)

	str("EVENTPOLL_MYHELSINKI_URL", &cfg.MyHelsinkiURL)
	str("EVENTPOLL_CURATED_EVENTS_FILE", &cfg.CuratedFile)
	duration("EVENTPOLL_EXTERNAL_CACHE_TTL", &cfg.ExternalCacheTTL, false)

	positiveInt("EVENTPOLL_EVENTS_PER_MONTH", &cfg.EventsPerMonth, false)
	duration("EVENTPOLL_CREATE_COOLDOWN", &cfg.CreateCooldown, true)

	if len(missing) > 0 {
		slices.Sort(missing)
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr returns the listen address for HTTPPort.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}
