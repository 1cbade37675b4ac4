package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/community-events/internal/application"
	"github.com/example/community-events/internal/config"
	"github.com/example/community-events/internal/external"
	httptransport "github.com/example/community-events/internal/http"
	"github.com/example/community-events/internal/metrics"
	"github.com/example/community-events/internal/persistence"
	"github.com/example/community-events/internal/persistence/github"
	"github.com/example/community-events/internal/persistence/memory"
	"github.com/example/community-events/internal/persistence/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	scheduler, err := app.scheduleSync(ctx)
	if err != nil {
		logger.Error("failed to schedule sync", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("event poll API listening", "addr", server.Addr, "storage", cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	closer  func() error
	metrics *metrics.Metrics
	sync    *application.SyncService
	handler http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	policy := persistence.RetryPolicy{Attempts: cfg.StorageRetries, Delay: cfg.StorageRetryDelay}
	eventRepo := persistence.NewEventStore(store, cfg.EventsPath, policy, m)
	userRepo := persistence.NewUserStore(store, cfg.UsersPath, policy, m)

	breaker := external.NewBreaker("myhelsinki", external.BreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute}, logger)
	myHelsinki := external.NewMyHelsinki(cfg.MyHelsinkiURL, external.WithBreaker(breaker))
	curated, err := external.LoadCurated(cfg.CuratedFile)
	if err != nil {
		_ = closer()
		return nil, err
	}
	entries := []external.Entry{{Source: myHelsinki, Filter: external.Filter{Localities: external.Localities}}}
	for _, source := range curated {
		entries = append(entries, external.Entry{Source: source, Filter: external.Filter{Localities: external.Localities}})
	}
	feed := external.NewFeed(entries, cfg.ExternalCacheTTL, external.WithFeedLogger(logger), external.WithFetchObserver(m))

	secretHash, err := application.HashSecret(cfg.SyncSecret, application.DefaultArgon2idParams)
	if err != nil {
		_ = closer()
		return nil, fmt.Errorf("hash sync secret: %w", err)
	}

	limiter := application.NewRateLimiter(cfg.EventsPerMonth, cfg.CreateCooldown, time.Now)
	eventService := application.NewEventServiceWithLogger(eventRepo, limiter, nil, time.Now, logger)
	voteService := application.NewVoteServiceWithLogger(eventRepo, m, logger)
	userService := application.NewUserServiceWithLogger(userRepo, nil, time.Now, logger)
	syncService := application.NewSyncService(application.SyncConfig{
		Events:     eventRepo,
		Source:     myHelsinki,
		SecretHash: secretHash,
		Schedule:   cfg.SyncSchedule,
		Observer:   m,
		Logger:     logger,
	})

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Events:   httptransport.NewEventHandler(eventService, voteService, logger),
		Users:    httptransport.NewUserHandler(userService, logger),
		Sync:     httptransport.NewSyncHandler(syncService, logger),
		External: httptransport.NewExternalHandler(feed, logger),
		Metrics:  m,
		Logger:   logger,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.CORS(),
		},
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		closer:  closer,
		metrics: m,
		sync:    syncService,
		handler: router,
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer()
}

// scheduleSync registers the monthly sync. The returned scheduler is not
// started.
func (a *app) scheduleSync(ctx context.Context) (*cron.Cron, error) {
	cronLogger := slogCronLogger{logger: a.logger.With("component", "cron")}
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	_, err := scheduler.AddFunc(a.cfg.SyncSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := a.sync.Run(runCtx, "cron"); err != nil {
			a.logger.ErrorContext(runCtx, "scheduled sync failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", a.cfg.SyncSchedule, err)
	}
	return scheduler, nil
}

func openStore(ctx context.Context, cfg config.Config) (persistence.DocumentStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(), noop, nil
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil
	case config.StorageGitHub:
		store, err := github.New(github.Config{
			Token:  cfg.GitHubToken,
			Owner:  cfg.GitHubOwner,
			Repo:   cfg.GitHubRepo,
			Branch: cfg.GitHubBranch,
		}, &http.Client{Timeout: 20 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
