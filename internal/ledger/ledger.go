// Package ledger keeps one client's vote records and the locally owned
// counters of external events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/community-events/internal/poll"
)

// DefaultRetention is how long a vote record is kept after it was last written.
const DefaultRetention = 365 * 24 * time.Hour

// ErrEmptyEventID is returned when a record without event id is written.
var ErrEmptyEventID = errors.New("ledger: event id is required")

// Entry is a stored vote record with its last write time.
type Entry struct {
	poll.VoteRecord
	RecordedAt time.Time `json:"recordedAt"`
}

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	Votes    []Entry                  `json:"votes"`
	External map[string]poll.Counters `json:"external,omitempty"`
}

// Store persists ledger snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// Ledger is the per-client map of event id to vote record. It is safe for
// concurrent use; every write is saved through the store before returning.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	now       func() time.Time
	retention time.Duration
	votes     map[string]Entry
	external  map[string]poll.Counters
}

// Option customises a ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for retention.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithRetention overrides DefaultRetention.
func WithRetention(retention time.Duration) Option {
	return func(l *Ledger) {
		if retention > 0 {
			l.retention = retention
		}
	}
}

// Open loads the ledger from store and drops expired records.
func Open(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Ledger{
		store:     store,
		now:       time.Now,
		retention: DefaultRetention,
		votes:     make(map[string]Entry),
		external:  make(map[string]poll.Counters),
	}
	for _, opt := range opts {
		opt(l)
	}

	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	cutoff := l.now().Add(-l.retention)
	for _, entry := range snapshot.Votes {
		if entry.EventID == "" || entry.RecordedAt.Before(cutoff) {
			continue
		}
		l.votes[entry.EventID] = entry
	}
	for id, counters := range snapshot.External {
		l.external[id] = counters
	}
	return l, nil
}

// HasVoted reports whether a record exists for eventID.
func (l *Ledger) HasVoted(eventID string) bool {
	_, ok := l.Get(eventID)
	return ok
}

// Get returns the record for eventID.
func (l *Ledger) Get(eventID string) (poll.VoteRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.votes[eventID]
	if !ok || l.expiredLocked(entry) {
		return poll.VoteRecord{}, false
	}
	return entry.VoteRecord, true
}

// RecordOrUpdate merges record into the stored one for the same event.
// Previously set fields are never dropped. The merged record is returned.
func (l *Ledger) RecordOrUpdate(ctx context.Context, record poll.VoteRecord) (poll.VoteRecord, error) {
	if record.EventID == "" {
		return poll.VoteRecord{}, ErrEmptyEventID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.votes[record.EventID]
	if l.expiredLocked(existing) {
		existing = Entry{}
	}
	merged := existing.VoteRecord.Merge(record)
	previous, had := l.votes[record.EventID]
	l.votes[record.EventID] = Entry{VoteRecord: merged, RecordedAt: l.now()}

	if err := l.saveLocked(ctx); err != nil {
		if had {
			l.votes[record.EventID] = previous
		} else {
			delete(l.votes, record.EventID)
		}
		return poll.VoteRecord{}, err
	}
	return merged, nil
}

// Clear removes the record for eventID. It is an administrative reset and
// not part of the voting flow.
func (l *Ledger) Clear(ctx context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous, ok := l.votes[eventID]
	if !ok {
		return nil
	}
	delete(l.votes, eventID)
	if err := l.saveLocked(ctx); err != nil {
		l.votes[eventID] = previous
		return err
	}
	return nil
}

// Records lists the live records ordered by event id.
func (l *Ledger) Records() []poll.VoteRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]poll.VoteRecord, 0, len(l.votes))
	for _, entry := range l.votes {
		if l.expiredLocked(entry) {
			continue
		}
		out = append(out, entry.VoteRecord)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out
}

// ExternalCounters returns a copy of the stored external event counters.
func (l *Ledger) ExternalCounters() map[string]poll.Counters {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]poll.Counters, len(l.external))
	for id, counters := range l.external {
		out[id] = cloneCounters(counters)
	}
	return out
}

// StoreExternal saves the counters of an external event.
func (l *Ledger) StoreExternal(ctx context.Context, eventID string, counters poll.Counters) error {
	if eventID == "" {
		return ErrEmptyEventID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previous, had := l.external[eventID]
	l.external[eventID] = cloneCounters(counters)
	if err := l.saveLocked(ctx); err != nil {
		if had {
			l.external[eventID] = previous
		} else {
			delete(l.external, eventID)
		}
		return err
	}
	return nil
}

func (l *Ledger) expiredLocked(entry Entry) bool {
	if entry.EventID == "" {
		return false
	}
	return entry.RecordedAt.Before(l.now().Add(-l.retention))
}

func (l *Ledger) saveLocked(ctx context.Context) error {
	snapshot := Snapshot{
		Votes:    make([]Entry, 0, len(l.votes)),
		External: make(map[string]poll.Counters, len(l.external)),
	}
	for _, entry := range l.votes {
		if l.expiredLocked(entry) {
			continue
		}
		snapshot.Votes = append(snapshot.Votes, entry)
	}
	sort.Slice(snapshot.Votes, func(i, j int) bool {
		return snapshot.Votes[i].EventID < snapshot.Votes[j].EventID
	})
	for id, counters := range l.external {
		snapshot.External[id] = cloneCounters(counters)
	}
	if err := l.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func cloneCounters(c poll.Counters) poll.Counters {
	out := c
	if c.TimeSlots != nil {
		out.TimeSlots = c.TimeSlots.Clone()
	}
	return out
}
