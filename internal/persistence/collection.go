package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds the read-modify-write loop of a collection.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the storage defaults: three attempts, 500ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 500 * time.Millisecond}
}

// Observer is notified about optimistic concurrency outcomes.
type Observer interface {
	ObserveConflict(collection string)
	ObserveRetry(collection string)
}

type noopObserver struct{}

func (noopObserver) ObserveConflict(string) {}
func (noopObserver) ObserveRetry(string)    {}

// Collection is a JSON array of T kept in a single document. Writes re-read
// the document and re-apply the mutation when another writer got there first.
type Collection[T any] struct {
	store    DocumentStore
	name     string
	policy   RetryPolicy
	observer Observer
}

// NewCollection binds a collection to the named document.
func NewCollection[T any](store DocumentStore, name string, policy RetryPolicy, observer Observer) *Collection[T] {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Collection[T]{store: store, name: name, policy: policy, observer: observer}
}

// Name returns the document name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Load returns the items and the version they were read at. A missing
// document is an empty collection.
func (c *Collection[T]) Load(ctx context.Context) ([]T, string, error) {
	doc, err := c.store.Get(ctx, c.name)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", c.name, err)
	}
	if !doc.Exists() || len(doc.Body) == 0 {
		return []T{}, doc.Version, nil
	}
	var items []T
	if err := json.Unmarshal(doc.Body, &items); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, doc.Version, nil
}

// Update applies mutate to the current items and writes the result. On a
// version conflict the document is re-read and mutate runs again, up to the
// policy's attempt budget. An error from mutate aborts without writing.
func (c *Collection[T]) Update(ctx context.Context, mutate func([]T) ([]T, error)) ([]T, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if attempt > 1 {
			c.observer.ObserveRetry(c.name)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.policy.Delay):
			}
		}

		items, version, err := c.Load(ctx)
		if err != nil {
			return nil, err
		}
		next, err := mutate(items)
		if err != nil {
			return nil, err
		}
		body, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.name, err)
		}

		_, err = c.store.Put(ctx, c.name, body, version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("write %s: %w", c.name, err)
		}
		c.observer.ObserveConflict(c.name)
		lastErr = err
	}
	return nil, fmt.Errorf("write %s after %d attempts: %w", c.name, c.policy.Attempts, lastErr)
}
