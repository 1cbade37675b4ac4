package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/community-events/internal/poll"
)

// Default document names, relative to the storage root.
const (
	DefaultEventsDocument = "data/events.json"
	DefaultUsersDocument  = "data/users.json"
)

// EventStore implements EventRepository on top of a document collection.
type EventStore struct {
	events *Collection[poll.Event]
}

// NewEventStore returns an event repository kept in the named document.
func NewEventStore(store DocumentStore, name string, policy RetryPolicy, observer Observer) *EventStore {
	if name == "" {
		name = DefaultEventsDocument
	}
	return &EventStore{events: NewCollection[poll.Event](store, name, policy, observer)}
}

// ListEvents returns every stored event in document order.
func (s *EventStore) ListEvents(ctx context.Context) ([]poll.Event, error) {
	events, _, err := s.events.Load(ctx)
	return events, err
}

// GetEvent returns the event with id.
func (s *EventStore) GetEvent(ctx context.Context, id string) (poll.Event, error) {
	events, _, err := s.events.Load(ctx)
	if err != nil {
		return poll.Event{}, err
	}
	if idx := indexOfEvent(events, id); idx >= 0 {
		return events[idx], nil
	}
	return poll.Event{}, ErrNotFound
}

// CreateEvent appends event. An existing id fails with ErrDuplicate.
func (s *EventStore) CreateEvent(ctx context.Context, event poll.Event) error {
	_, err := s.events.Update(ctx, func(events []poll.Event) ([]poll.Event, error) {
		if indexOfEvent(events, event.ID) >= 0 {
			return nil, fmt.Errorf("event %s: %w", event.ID, ErrDuplicate)
		}
		return append(events, event), nil
	})
	return err
}

// ReplaceEvent overwrites the stored event with the same id.
func (s *EventStore) ReplaceEvent(ctx context.Context, event poll.Event) error {
	_, err := s.events.Update(ctx, func(events []poll.Event) ([]poll.Event, error) {
		idx := indexOfEvent(events, event.ID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		events[idx] = event
		return events, nil
	})
	return err
}

// DeleteEvent removes the event with id.
func (s *EventStore) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.events.Update(ctx, func(events []poll.Event) ([]poll.Event, error) {
		idx := indexOfEvent(events, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		return append(events[:idx], events[idx+1:]...), nil
	})
	return err
}

// MutateEvent runs fn against the freshly read event and stores the result.
// fn may run more than once when concurrent writers conflict, so it must
// describe one logical change and nothing else.
func (s *EventStore) MutateEvent(ctx context.Context, id string, fn func(*poll.Event) error) (poll.Event, error) {
	var updated poll.Event
	_, err := s.events.Update(ctx, func(events []poll.Event) ([]poll.Event, error) {
		idx := indexOfEvent(events, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		event := events[idx].Clone()
		if err := fn(&event); err != nil {
			return nil, err
		}
		events[idx] = event
		updated = event
		return events, nil
	})
	if err != nil {
		return poll.Event{}, err
	}
	return updated, nil
}

// AppendEvents adds the events whose key is not yet present and returns the
// ones actually added. Nothing is written when every key already exists.
func (s *EventStore) AppendEvents(ctx context.Context, incoming []poll.Event, key func(poll.Event) string) ([]poll.Event, error) {
	if len(incoming) == 0 {
		return nil, nil
	}
	var added []poll.Event
	_, err := s.events.Update(ctx, func(events []poll.Event) ([]poll.Event, error) {
		added = added[:0]
		seen := make(map[string]struct{}, len(events)+len(incoming))
		for _, event := range events {
			seen[key(event)] = struct{}{}
		}
		for _, event := range incoming {
			k := key(event)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			added = append(added, event)
		}
		if len(added) == 0 {
			return nil, errNothingToAppend
		}
		return append(events, added...), nil
	})
	if errors.Is(err, errNothingToAppend) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return added, nil
}

var errNothingToAppend = errors.New("persistence: nothing to append")

func indexOfEvent(events []poll.Event, id string) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}

// UserStore implements UserRepository on top of a document collection.
type UserStore struct {
	users *Collection[User]
}

// NewUserStore returns a user repository kept in the named document.
func NewUserStore(store DocumentStore, name string, policy RetryPolicy, observer Observer) *UserStore {
	if name == "" {
		name = DefaultUsersDocument
	}
	return &UserStore{users: NewCollection[User](store, name, policy, observer)}
}

// ListUsers returns all registered users in registration order.
func (s *UserStore) ListUsers(ctx context.Context) ([]User, error) {
	users, _, err := s.users.Load(ctx)
	return users, err
}

// CreateUser appends user. Usernames are unique regardless of case.
func (s *UserStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.users.Update(ctx, func(users []User) ([]User, error) {
		for _, existing := range users {
			if strings.EqualFold(existing.Username, user.Username) {
				return nil, fmt.Errorf("user %s: %w", user.Username, ErrDuplicate)
			}
		}
		return append(users, user), nil
	})
	return err
}
