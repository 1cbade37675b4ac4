package persistence

import (
	"context"

	"github.com/example/community-events/internal/poll"
)

// DocumentStore persists whole JSON documents with optimistic concurrency.
// Get on a missing document returns an empty Document and no error. Put with
// a stale expectedVersion fails with ErrConflict; an empty expectedVersion
// means the document must not exist yet.
type DocumentStore interface {
	Get(ctx context.Context, name string) (Document, error)
	Put(ctx context.Context, name string, body []byte, expectedVersion string) (string, error)
}

// EventRepository stores event aggregates.
type EventRepository interface {
	ListEvents(ctx context.Context) ([]poll.Event, error)
	GetEvent(ctx context.Context, id string) (poll.Event, error)
	CreateEvent(ctx context.Context, event poll.Event) error
	ReplaceEvent(ctx context.Context, event poll.Event) error
	DeleteEvent(ctx context.Context, id string) error
	MutateEvent(ctx context.Context, id string, fn func(*poll.Event) error) (poll.Event, error)
	AppendEvents(ctx context.Context, events []poll.Event, key func(poll.Event) string) ([]poll.Event, error)
}

// UserRepository stores registered users.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, user User) error
}
