package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/example/community-events/internal/persistence"
	"github.com/example/community-events/internal/poll"
)

// Event field limits, counted in runes after trimming.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 300

	AnonymousSuggester = "Anonymous"
)

// EventRepository captures the persistence operations needed by the event services.
type EventRepository interface {
	ListEvents(ctx context.Context) ([]poll.Event, error)
	GetEvent(ctx context.Context, id string) (poll.Event, error)
	CreateEvent(ctx context.Context, event poll.Event) error
	ReplaceEvent(ctx context.Context, event poll.Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// EventService orchestrates validation, rate limiting and persistence of
// community suggested events.
type EventService struct {
	events      EventRepository
	limiter     *RateLimiter
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an event service with the provided dependencies.
func NewEventService(events EventRepository, limiter *RateLimiter, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, limiter, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, limiter *RateLimiter, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "evt-" + uuid.NewString() }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{events: events, limiter: limiter, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// ListEvents returns every stored event, newest created first.
func (s *EventService) ListEvents(ctx context.Context) (events []poll.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		return []poll.Event{}, nil
	}

	logger := s.loggerWith(ctx, "ListEvents")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(events)).DebugContext(ctx, "events listed")
	}()

	var raw []poll.Event
	raw, err = s.events.ListEvents(ctx)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	events = make([]poll.Event, len(raw))
	copy(events, raw)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return
}

// CategorizeEvents partitions the stored events into the display groups.
func (s *EventService) CategorizeEvents(ctx context.Context) (poll.Board, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return poll.Board{}, err
	}
	return poll.Categorize(events, s.now()), nil
}

// GetEvent returns one stored event with its derived values.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (EventDetail, error) {
	if s == nil {
		return EventDetail{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return EventDetail{}, ErrNotFound
	}

	event, err := s.events.GetEvent(ctx, strings.TrimSpace(eventID))
	if err != nil {
		return EventDetail{}, mapRepoError(err)
	}
	return DetailOf(event), nil
}

// DetailOf derives the interest percentage and the top-3 time leaderboard of
// every slot with votes.
func DetailOf(event poll.Event) EventDetail {
	detail := EventDetail{
		Event:              event,
		InterestPercentage: event.InterestPercentage(),
		Leaderboards:       make(map[poll.Slot][]poll.TimeTally),
	}
	for _, slot := range poll.Slots() {
		if top := event.TopTimes(slot, 3); len(top) > 0 {
			detail.Leaderboards[slot] = top
		}
	}
	return detail
}

// CreateEvent validates input, enforces the suggester's quota and persists a
// new event with zeroed counters.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event poll.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	normalized := normalizeEventInput(params.Input)
	logger := s.loggerWith(ctx, "CreateEvent", "suggested_by", normalized.SuggestedBy)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event created")
	}()

	var slot poll.Slot
	slot, err = validateEventInput(normalized)
	if err != nil {
		return
	}

	var release func()
	if release, err = s.limiter.Reserve(normalized.SuggestedBy); err != nil {
		return
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	event = poll.Event{
		ID:                s.idGenerator(),
		Title:             normalized.Title,
		Description:       normalized.Description,
		SuggestedBy:       normalized.SuggestedBy,
		CreatedAt:         s.now().UTC(),
		EventDate:         normalized.EventDate,
		SuggestedTimeSlot: slot,
		SuggestedTime:     normalized.SuggestedTime,
		ExternalURL:       normalized.ExternalURL,
	}
	event.Normalize()

	if s.events != nil {
		if err = s.events.CreateEvent(ctx, event); err != nil {
			err = mapRepoError(err)
			return
		}
	}

	return
}

// CreationStats reports how many events suggester created this month and
// overall, and when the monthly quota resets.
func (s *EventService) CreationStats(ctx context.Context, suggester string) (stats CreationStats, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	suggester = strings.TrimSpace(suggester)
	if suggester == "" {
		vErr := &ValidationError{}
		vErr.add("suggester", "suggester is required")
		err = vErr
		return
	}

	stats = s.limiter.Stats(suggester)
	if s.limiter == nil {
		stats.ResetsAt = firstOfNextMonth(s.now())
	}
	s.loggerWith(ctx, "CreationStats", "suggested_by", suggester).DebugContext(ctx, "creation stats read", "month_count", stats.MonthCount)
	return
}

// ReplaceEvent overwrites a stored event. It is the corrective path and may
// set any counter, so it only checks the counters stay consistent.
func (s *EventService) ReplaceEvent(ctx context.Context, params ReplaceEventParams) (event poll.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	event = params.Event.Clone()
	event.ID = strings.TrimSpace(event.ID)
	logger := s.loggerWith(ctx, "ReplaceEvent", "event_id", event.ID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to replace event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event replaced")
	}()

	vErr := &ValidationError{}
	if event.ID == "" {
		vErr.add("id", "id is required")
	}
	if event.IsExternal {
		vErr.add("isExternal", "external events are not stored")
	}
	event.Normalize()
	if cErr := event.CheckCounters(); cErr != nil {
		vErr.add("timeSlots", cErr.Error())
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.events.ReplaceEvent(ctx, event); err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// DeleteEvent removes a stored event.
func (s *EventService) DeleteEvent(ctx context.Context, eventID string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	eventID = strings.TrimSpace(eventID)
	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", eventID)
	if eventID == "" {
		vErr := &ValidationError{}
		vErr.add("eventId", "event id is required")
		logger.ErrorContext(ctx, "failed to delete event", "error", vErr, "error_kind", ErrorKind(vErr))
		return vErr
	}

	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "event deleted")
	return nil
}

func normalizeEventInput(input EventInput) EventInput {
	out := EventInput{
		Title:             strings.TrimSpace(input.Title),
		Description:       strings.TrimSpace(input.Description),
		SuggestedBy:       strings.TrimSpace(input.SuggestedBy),
		SuggestedTimeSlot: strings.TrimSpace(input.SuggestedTimeSlot),
		SuggestedTime:     strings.TrimSpace(input.SuggestedTime),
		ExternalURL:       strings.TrimSpace(input.ExternalURL),
	}
	if out.SuggestedBy == "" {
		out.SuggestedBy = AnonymousSuggester
	}
	if input.EventDate != nil && !input.EventDate.IsZero() {
		date := input.EventDate.UTC()
		out.EventDate = &date
	}
	return out
}

func validateEventInput(input EventInput) (poll.Slot, error) {
	vErr := &ValidationError{}

	if input.Title == "" {
		vErr.add("title", "title is required")
	} else if utf8.RuneCountInString(input.Title) > MaxTitleLength {
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}

	if input.Description == "" {
		vErr.add("description", "description is required")
	} else if utf8.RuneCountInString(input.Description) > MaxDescriptionLength {
		vErr.add("description", fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}

	var slot poll.Slot
	if input.SuggestedTimeSlot != "" {
		parsed, err := poll.ParseSlot(input.SuggestedTimeSlot)
		if err != nil {
			vErr.add("suggestedTimeSlot", "time slot must be morning, afternoon, evening or night")
		}
		slot = parsed
	}

	if input.SuggestedTime != "" {
		switch {
		case slot != "":
			if !poll.SlotContains(slot, input.SuggestedTime) {
				vErr.add("suggestedTime", fmt.Sprintf("time must be a half hour within %s", slot.Range()))
			}
		default:
			inferred, ok := poll.SlotOf(input.SuggestedTime)
			if !ok || !poll.SlotContains(inferred, input.SuggestedTime) {
				vErr.add("suggestedTime", "time must be a half hour in HH:MM form")
			} else if input.SuggestedTimeSlot == "" {
				slot = inferred
			}
		}
	}

	if vErr.HasErrors() {
		return "", vErr
	}
	return slot, nil
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%w: %v", ErrStorageBusy, err)
	}
	return err
}
