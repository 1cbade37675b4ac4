package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/community-events/internal/persistence"
	"github.com/example/community-events/internal/persistence/memory"
	"github.com/example/community-events/internal/poll"
)

// FastRetryPolicy keeps conflict retries quick in tests.
var FastRetryPolicy = persistence.RetryPolicy{Attempts: 3, Delay: time.Millisecond}

// Repositories bundles event and user repositories over one document store.
type Repositories struct {
	Store  persistence.DocumentStore
	Events *persistence.EventStore
	Users  *persistence.UserStore
}

// NewRepositories builds repositories over store with the default document
// names and FastRetryPolicy.
func NewRepositories(store persistence.DocumentStore, observer persistence.Observer) *Repositories {
	return &Repositories{
		Store:  store,
		Events: persistence.NewEventStore(store, persistence.DefaultEventsDocument, FastRetryPolicy, observer),
		Users:  persistence.NewUserStore(store, persistence.DefaultUsersDocument, FastRetryPolicy, observer),
	}
}

// NewMemoryRepositories builds repositories over a fresh in-memory store.
func NewMemoryRepositories() *Repositories {
	return NewRepositories(memory.New(), nil)
}

// SeedEvents stores events, failing the test on error.
func (r *Repositories) SeedEvents(tb testing.TB, events ...poll.Event) {
	tb.Helper()
	for _, event := range events {
		if err := r.Events.CreateEvent(context.Background(), event); err != nil {
			tb.Fatalf("seed event %s: %v", event.ID, err)
		}
	}
}
