package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/community-events/internal/poll"
)

// ExternalIDPrefix marks events that come from third-party feeds.
const ExternalIDPrefix = "external-"

// EventMutator applies one logical change to a stored event under
// optimistic concurrency.
type EventMutator interface {
	MutateEvent(ctx context.Context, id string, fn func(*poll.Event) error) (poll.Event, error)
}

// VoteObserver is told about every applied funnel action.
type VoteObserver interface {
	ObserveVote(action string, err error)
}

// VoteService applies funnel deltas sent by clients to the shared counters.
// Who voted is tracked by each client's ledger, not here.
type VoteService struct {
	events   EventMutator
	observer VoteObserver
	logger   *slog.Logger
}

// NewVoteService constructs a vote service.
func NewVoteService(events EventMutator, observer VoteObserver) *VoteService {
	return NewVoteServiceWithLogger(events, observer, nil)
}

// NewVoteServiceWithLogger constructs a vote service with a specified logger.
func NewVoteServiceWithLogger(events EventMutator, observer VoteObserver, logger *slog.Logger) *VoteService {
	return &VoteService{events: events, observer: observer, logger: defaultLogger(logger)}
}

// ApplyVote adds the delta of params.Action to the stored event and returns
// the updated aggregate.
func (s *VoteService) ApplyVote(ctx context.Context, params VoteParams) (event poll.Event, err error) {
	if s == nil {
		err = fmt.Errorf("VoteService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	eventID := strings.TrimSpace(params.EventID)
	logger := serviceLogger(ctx, s.logger, "VoteService", "ApplyVote",
		"event_id", eventID,
		"action", string(params.Action.Kind),
	)
	defer func() {
		if s.observer != nil {
			s.observer.ObserveVote(string(params.Action.Kind), err)
		}
		if err != nil {
			logger.WarnContext(ctx, "vote rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "vote applied")
	}()

	if eventID == "" {
		vErr := &ValidationError{}
		vErr.add("eventId", "event id is required")
		err = vErr
		return
	}
	if strings.HasPrefix(eventID, ExternalIDPrefix) {
		err = ErrExternalEvent
		return
	}

	action := params.Action
	if action.Kind == poll.ActionChooseTime && action.Slot == "" {
		// a bare time implies its slot
		if slot, ok := poll.SlotOf(action.Time); ok {
			action.Slot = slot
		}
	}

	var delta poll.Delta
	delta, err = poll.DeltaFor(action)
	if err != nil {
		return
	}

	event, err = s.events.MutateEvent(ctx, eventID, func(e *poll.Event) error {
		if e.IsExternal {
			return ErrExternalEvent
		}
		return e.Apply(delta)
	})
	if err != nil && !errors.Is(err, ErrExternalEvent) {
		err = mapRepoError(err)
	}
	return
}
