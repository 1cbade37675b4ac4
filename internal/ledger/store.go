package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/community-events/internal/poll"
)

// MemoryStore keeps the snapshot in process. Useful for tests and for
// sessions that should not outlive the process.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot Snapshot
	saves    int
	failNext error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the last saved snapshot.
func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snapshot), nil
}

// Save replaces the stored snapshot.
func (s *MemoryStore) Save(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.snapshot = copySnapshot(snapshot)
	s.saves++
	return nil
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailNextSave makes the next Save return err.
func (s *MemoryStore) FailNextSave(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func copySnapshot(in Snapshot) Snapshot {
	out := Snapshot{Votes: append([]Entry(nil), in.Votes...)}
	if in.External != nil {
		out.External = make(map[string]poll.Counters, len(in.External))
		for id, counters := range in.External {
			out.External[id] = cloneCounters(counters)
		}
	}
	return out
}

// FileStore persists the snapshot as a JSON file. Writes go to a temporary
// file in the same directory which is then renamed over the target.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	if len(data) == 0 {
		return Snapshot{}, nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return snapshot, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
