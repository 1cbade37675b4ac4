package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/community-events/internal/ledger"
	"github.com/example/community-events/internal/poll"
)

// ErrUnknownEvent is returned for event ids not present in the current view.
var ErrUnknownEvent = errors.New("client: unknown event")

// Snapshot is what a refresh shows: the community events arranged for
// display and the external listings with this client's own counters.
type Snapshot struct {
	Board    poll.Board
	External []poll.Event
}

// SlotOption is one selectable time slot with its current tally.
type SlotOption struct {
	Slot  poll.Slot
	Range string
	Votes int
}

// EventView is everything needed to render one event's voting controls.
type EventView struct {
	Event              poll.Event
	Stage              poll.Stage
	Record             *poll.VoteRecord
	InterestPercentage int
	Slots              []SlotOption
	Times              []poll.TimeTally
	Leaderboard        map[poll.Slot][]poll.TimeTally
}

// Session is one voter's client. Funnel state is derived from the ledger,
// never from the server.
type Session struct {
	api    API
	ledger *ledger.Ledger
	now    func() time.Time
	logger *slog.Logger

	// serializes Vote so ledger gating and the write happen as one step
	voteMu sync.Mutex

	mu           sync.Mutex
	community    map[string]poll.Event
	external     map[string]poll.Event
	externalIDs  []string
	needsRefresh bool
}

// SessionOption customises a session.
type SessionOption func(*Session)

// WithSessionClock overrides the clock used for categorization.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession binds a server API to a vote ledger.
func NewSession(api API, l *ledger.Ledger, opts ...SessionOption) *Session {
	s := &Session{
		api:       api,
		ledger:    l,
		now:       time.Now,
		logger:    slog.Default(),
		community: make(map[string]poll.Event),
		external:  make(map[string]poll.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads community and external events. External counters come
// from the ledger, since the source always reports zero. A failing external
// feed keeps the previous external list.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	community, err := s.api.ListEvents(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("refresh events: %w", err)
	}

	external, extErr := s.api.ListExternal(ctx)
	if extErr != nil {
		s.logger.WarnContext(ctx, "external events unavailable", "error", extErr)
	} else {
		external = poll.Overlay(external, s.ledger.ExternalCounters())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.community = make(map[string]poll.Event, len(community))
	for _, event := range community {
		event.Normalize()
		s.community[event.ID] = event
	}
	if extErr == nil {
		s.external = make(map[string]poll.Event, len(external))
		s.externalIDs = s.externalIDs[:0]
		for _, event := range external {
			event.IsExternal = true
			s.external[event.ID] = event
			s.externalIDs = append(s.externalIDs, event.ID)
		}
	}
	s.needsRefresh = false

	return s.snapshotLocked(), nil
}

// Current returns the last known state without contacting the server.
func (s *Session) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	community := make([]poll.Event, 0, len(s.community))
	for _, event := range s.community {
		community = append(community, event.Clone())
	}
	external := make([]poll.Event, 0, len(s.externalIDs))
	for _, id := range s.externalIDs {
		external = append(external, s.external[id].Clone())
	}
	return Snapshot{Board: poll.Categorize(community, s.now()), External: external}
}

// NeedsRefresh reports whether a failed write left the view out of step
// with the server.
func (s *Session) NeedsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsRefresh
}

// Vote runs action through the funnel for eventID. The ledger record is
// written first; then the counters are changed optimistically and persisted,
// to the server for community events and to the ledger for external ones.
// If the server write fails the view rolls back and is reloaded from the
// server, while the ledger keeps the record so the vote cannot be repeated.
// When that reload fails too, NeedsRefresh stays true.
func (s *Session) Vote(ctx context.Context, eventID string, action poll.Action) (poll.Event, error) {
	s.voteMu.Lock()
	defer s.voteMu.Unlock()

	s.mu.Lock()
	event, external, ok := s.lookupLocked(eventID)
	s.mu.Unlock()
	if !ok {
		return poll.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}

	state := s.stateOf(eventID)
	next, delta, err := poll.Transition(state, action)
	if err != nil {
		return poll.Event{}, err
	}
	record, _ := next.Record(eventID)
	if _, err := s.ledger.RecordOrUpdate(ctx, record); err != nil {
		return poll.Event{}, err
	}

	updated := event.Clone()
	if err := updated.Apply(delta); err != nil {
		return poll.Event{}, err
	}
	s.put(updated, external)

	logger := s.logger.With("event_id", eventID, "action", string(action.Kind), "stage", next.Stage.String())

	if external {
		if err := s.ledger.StoreExternal(ctx, eventID, poll.CountersOf(updated)); err != nil {
			s.put(event, external)
			logger.ErrorContext(ctx, "external counters not saved", "error", err)
			return poll.Event{}, err
		}
		logger.InfoContext(ctx, "external vote recorded")
		return updated, nil
	}

	sent := action
	sent.Slot = next.Slot
	stored, err := s.api.ApplyVote(ctx, eventID, sent)
	if err != nil {
		s.mu.Lock()
		s.community[eventID] = event
		s.needsRefresh = true
		s.mu.Unlock()
		logger.WarnContext(ctx, "vote not persisted, view rolled back", "error", err)
		if _, refreshErr := s.Refresh(ctx); refreshErr != nil {
			logger.WarnContext(ctx, "refresh after failed vote", "error", refreshErr)
		}
		return poll.Event{}, err
	}

	stored.Normalize()
	s.put(stored, false)
	logger.InfoContext(ctx, "vote recorded")
	return stored, nil
}

// Forget drops the ledger record of eventID. Counters are not touched.
func (s *Session) Forget(ctx context.Context, eventID string) error {
	return s.ledger.Clear(ctx, eventID)
}

// View derives the voting controls of eventID.
func (s *Session) View(eventID string) (EventView, error) {
	s.mu.Lock()
	event, _, ok := s.lookupLocked(eventID)
	s.mu.Unlock()
	if !ok {
		return EventView{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}

	view := EventView{
		Event:              event,
		InterestPercentage: event.InterestPercentage(),
		Leaderboard:        make(map[poll.Slot][]poll.TimeTally),
	}
	if record, ok := s.ledger.Get(eventID); ok {
		view.Record = &record
	}
	state := poll.StateOf(view.Record)
	view.Stage = state.Stage

	for _, slot := range poll.Slots() {
		view.Slots = append(view.Slots, SlotOption{Slot: slot, Range: slot.Range(), Votes: event.TimeSlots[slot].Votes})
		if top := event.TopTimes(slot, 3); len(top) > 0 {
			view.Leaderboard[slot] = top
		}
	}
	if state.Stage == poll.StageInterestedWithSlot || state.Stage == poll.StageInterestedWithTime {
		view.Times = event.TimeOptions(state.Slot)
	}
	return view, nil
}

// Voted lists the ledger records, ordered by event id.
func (s *Session) Voted() []poll.VoteRecord {
	return s.ledger.Records()
}

func (s *Session) stateOf(eventID string) poll.State {
	if record, ok := s.ledger.Get(eventID); ok {
		return poll.StateOf(&record)
	}
	return poll.StateOf(nil)
}

func (s *Session) lookupLocked(eventID string) (poll.Event, bool, bool) {
	if event, ok := s.community[eventID]; ok {
		return event.Clone(), false, true
	}
	if event, ok := s.external[eventID]; ok {
		return event.Clone(), true, true
	}
	return poll.Event{}, false, false
}

func (s *Session) put(event poll.Event, external bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if external {
		s.external[event.ID] = event
		return
	}
	s.community[event.ID] = event
}
