package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/community-events/internal/external"
	"github.com/example/community-events/internal/poll"
)

// Sync defaults.
const (
	SyncSource      = "MyHelsinki Monthly Sync"
	SyncSuggestedBy = "Turku Events Auto-Sync"
	SyncWindow      = 30 * 24 * time.Hour
	SyncMaxEvents   = 10
	SyncDefaultTime = "18:00"
	DefaultSchedule = "0 0 1 * *"
)

// EventAppender adds events whose key is not stored yet.
type EventAppender interface {
	AppendEvents(ctx context.Context, events []poll.Event, key func(poll.Event) string) ([]poll.Event, error)
}

// SyncObserver is told about every sync run.
type SyncObserver interface {
	ObserveSync(trigger string, added int, err error)
}

// SyncService copies upcoming listings from an upstream source into the
// stored community events, so votes on them are shared.
type SyncService struct {
	events      EventAppender
	source      external.Source
	secretHash  string
	schedule    string
	observer    SyncObserver
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	mu     sync.Mutex
	status SyncStatus
}

// SyncConfig holds the wiring of a sync service.
type SyncConfig struct {
	Events      EventAppender
	Source      external.Source
	SecretHash  string
	Schedule    string
	Observer    SyncObserver
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewSyncService constructs a sync service.
func NewSyncService(cfg SyncConfig) *SyncService {
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return uuid.NewString()[:8] }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &SyncService{
		events:      cfg.Events,
		source:      cfg.Source,
		secretHash:  cfg.SecretHash,
		schedule:    cfg.Schedule,
		observer:    cfg.Observer,
		idGenerator: cfg.IDGenerator,
		now:         cfg.Now,
		logger:      defaultLogger(cfg.Logger),
		status:      SyncStatus{Schedule: cfg.Schedule},
	}
}

// VerifySecret checks a bearer token against the configured secret hash.
func (s *SyncService) VerifySecret(token string) error {
	if s == nil || s.secretHash == "" || token == "" {
		return ErrUnauthorized
	}
	if err := VerifySecret(s.secretHash, token); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// Run fetches upcoming local listings and appends the ones whose
// (title, source) pair is not stored yet. trigger labels the caller in logs
// and metrics.
func (s *SyncService) Run(ctx context.Context, trigger string) (result SyncResult, err error) {
	if s == nil {
		err = fmt.Errorf("SyncService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "SyncService", "Run", "trigger", trigger)
	defer func() {
		s.finish(result, err)
		if s.observer != nil {
			s.observer.ObserveSync(trigger, result.Added, err)
		}
		if err != nil {
			logger.ErrorContext(ctx, "sync failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "sync finished", "fetched", result.Fetched, "added", result.Added)
	}()

	if s.source == nil || s.events == nil {
		err = fmt.Errorf("sync source not configured")
		return
	}

	now := s.now().UTC()
	until := now.Add(SyncWindow)
	var listings []external.Descriptor
	listings, err = s.source.ListEvents(ctx, external.Filter{
		Localities: external.Localities,
		From:       &now,
		Until:      &until,
		Max:        SyncMaxEvents,
	})
	if err != nil {
		err = fmt.Errorf("fetch %s: %w", s.source.Name(), err)
		return
	}

	candidates := make([]poll.Event, 0, len(listings))
	for _, listing := range listings {
		candidates = append(candidates, s.convert(listing, now))
	}
	result.Fetched = len(candidates)

	var added []poll.Event
	added, err = s.events.AppendEvents(ctx, candidates, syncKey)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	result.Added = len(added)
	result.Events = added
	return
}

// Status reports the schedule and the latest run.
func (s *SyncService) Status() SyncStatus {
	if s == nil {
		return SyncStatus{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if status.LastRun != nil {
		last := *status.LastRun
		status.LastRun = &last
	}
	return status
}

func (s *SyncService) finish(result SyncResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ran := s.now().UTC()
	s.status.LastRun = &ran
	s.status.LastAdded = result.Added
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// convert turns a listing into a regular community event, so its votes are
// stored like any other suggestion.
func (s *SyncService) convert(listing external.Descriptor, now time.Time) poll.Event {
	event := external.Ingest(s.source.Name(), listing, now)

	event.ID = "turku-monthly-" + external.ListingID(s.source.Name(), listing) + "-" + s.idGenerator()
	event.IsExternal = false
	event.Source = SyncSource
	event.SuggestedBy = SyncSuggestedBy
	event.SuggestedTimeSlot = poll.SlotEvening
	if event.EventDate != nil {
		event.SuggestedTime = SyncDefaultTime
	}
	return event
}

func syncKey(event poll.Event) string {
	return strings.ToLower(event.Title) + "\x00" + event.Source
}
