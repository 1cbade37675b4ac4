package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/community-events/internal/poll"
)

const feedCacheKey = "external-feed"

// Localities names the area the feed is about.
var Localities = []string{"turku", "åbo"}

// Entry pairs a source with the filter applied to it.
type Entry struct {
	Source Source
	Filter Filter
}

// FetchObserver is told about every source call.
type FetchObserver interface {
	ObserveFetch(source string, duration time.Duration, err error)
}

// Feed merges the listings of several sources into one external event list.
// Results are cached for the configured TTL.
type Feed struct {
	entries  []Entry
	now      func() time.Time
	logger   *slog.Logger
	observer FetchObserver
	cache    *expirable.LRU[string, []poll.Event]
	group    sync.Mutex
}

// FeedOption customises a feed.
type FeedOption func(*Feed)

// WithFeedClock overrides the clock used for ingestion timestamps.
func WithFeedClock(now func() time.Time) FeedOption {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

// WithFeedLogger sets the logger for partial failures.
func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFetchObserver reports source calls to o.
func WithFetchObserver(o FetchObserver) FeedOption {
	return func(f *Feed) {
		f.observer = o
	}
}

// NewFeed returns a feed over entries, refreshed at most every ttl.
func NewFeed(entries []Entry, ttl time.Duration, opts ...FeedOption) *Feed {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	f := &Feed{
		entries: append([]Entry(nil), entries...),
		now:     time.Now,
		logger:  slog.Default(),
		cache:   expirable.NewLRU[string, []poll.Event](1, nil, ttl),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ErrNoSources is returned when every source failed.
var ErrNoSources = errors.New("external: no source returned listings")

// Events returns the merged, title-deduplicated listings in source order.
// Failing sources are logged and skipped; only when all of them fail is an
// error returned.
func (f *Feed) Events(ctx context.Context) ([]poll.Event, error) {
	if events, ok := f.cache.Get(feedCacheKey); ok {
		return cloneEvents(events), nil
	}

	// one refresh at a time; late callers reuse its result
	f.group.Lock()
	defer f.group.Unlock()
	if events, ok := f.cache.Get(feedCacheKey); ok {
		return cloneEvents(events), nil
	}

	events, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}
	f.cache.Add(feedCacheKey, events)
	return cloneEvents(events), nil
}

// Invalidate drops the cached listings.
func (f *Feed) Invalidate() {
	f.cache.Purge()
}

type sourceResult struct {
	events []poll.Event
	err    error
}

func (f *Feed) fetch(ctx context.Context) ([]poll.Event, error) {
	if len(f.entries) == 0 {
		return []poll.Event{}, nil
	}

	results := make([]sourceResult, len(f.entries))
	var wg sync.WaitGroup
	for i, entry := range f.entries {
		wg.Add(1)
		go func(i int, entry Entry) {
			defer wg.Done()
			started := time.Now()
			descriptors, err := entry.Source.ListEvents(ctx, entry.Filter)
			if f.observer != nil {
				f.observer.ObserveFetch(entry.Source.Name(), time.Since(started), err)
			}
			if err != nil {
				results[i] = sourceResult{err: err}
				return
			}
			now := f.now()
			events := make([]poll.Event, 0, len(descriptors))
			for _, d := range descriptors {
				events = append(events, Ingest(entry.Source.Name(), d, now))
			}
			results[i] = sourceResult{events: events}
		}(i, entry)
	}
	wg.Wait()

	var (
		merged   []poll.Event
		failures int
		errs     []error
	)
	for i, result := range results {
		if result.err != nil {
			failures++
			name := f.entries[i].Source.Name()
			errs = append(errs, fmt.Errorf("%s: %w", name, result.err))
			f.logger.WarnContext(ctx, "external source failed", "source", name, "error", result.err)
			continue
		}
		merged = append(merged, result.events...)
	}
	if failures == len(results) {
		return nil, fmt.Errorf("%w: %w", ErrNoSources, errors.Join(errs...))
	}
	return poll.DedupeByTitle(merged), nil
}

func cloneEvents(events []poll.Event) []poll.Event {
	out := make([]poll.Event, len(events))
	for i, event := range events {
		out[i] = event.Clone()
	}
	return out
}
