package state

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no state exists for a key.
var ErrNotFound = errors.New("review state not found")

// Store durably keeps ReviewState snapshots keyed by review. Saves are
// atomic at the granularity of one full snapshot; concurrent saves to the
// same key resolve last-write-wins. Different keys never contend on each
// other's content.
type Store interface {
	Save(ctx context.Context, s *ReviewState) error
	Load(ctx context.Context, key Key) (*ReviewState, error)
	CleanupOldStates(ctx context.Context, maxAgeDays int) (int, error)
}

// MemoryStore keeps snapshots in process memory. Each save stores a deep
// copy, so a snapshot never changes after the save returns.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]*ReviewState
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]*ReviewState)}
}

// Save stores a snapshot of s under its key, replacing any previous one.
func (m *MemoryStore) Save(_ context.Context, s *ReviewState) error {
	snapshot := s.Clone()

	m.mu.Lock()
	m.states[s.Key] = snapshot
	m.mu.Unlock()
	return nil
}

// Load returns a copy of the stored snapshot for key, or ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, key Key) (*ReviewState, error) {
	m.mu.RLock()
	s, ok := m.states[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// CleanupOldStates deletes every state whose last activity is older than
// maxAgeDays and returns the number removed.
func (m *MemoryStore) CleanupOldStates(_ context.Context, maxAgeDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, s := range m.states {
		if s.LastActivity().Before(cutoff) {
			delete(m.states, k)
			removed++
		}
	}
	return removed, nil
}
