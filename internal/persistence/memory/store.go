// Package memory provides an in-process document store for tests and local
// development.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/example/community-events/internal/persistence"
)

type document struct {
	body    []byte
	version uint64
}

// Store keeps documents in a map. Versions are per-document counters.
type Store struct {
	mu   sync.RWMutex
	docs map[string]document
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string]document)}
}

// Get returns the named document or an empty Document when it is missing.
func (s *Store) Get(ctx context.Context, name string) (persistence.Document, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[name]
	if !ok {
		return persistence.Document{}, nil
	}
	return persistence.Document{
		Body:    append([]byte(nil), doc.body...),
		Version: strconv.FormatUint(doc.version, 10),
	}, nil
}

// Put stores body when expectedVersion matches the current version.
func (s *Store) Put(ctx context.Context, name string, body []byte, expectedVersion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[name]
	currentVersion := ""
	if ok {
		currentVersion = strconv.FormatUint(current.version, 10)
	}
	if currentVersion != expectedVersion {
		return "", persistence.ErrConflict
	}

	next := document{body: append([]byte(nil), body...), version: current.version + 1}
	s.docs[name] = next
	return strconv.FormatUint(next.version, 10), nil
}
