package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/feelflow/pkg/domain"
)

type entry struct {
	session *domain.Session
	seq     uint64
}

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]entry
	next uint64
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]entry),
	}
}

// Save stores a copy of the session so later mutations by the caller do not leak in.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[session.ID]
	if !ok {
		s.next++
		e.seq = s.next
	}
	e.session = session.Clone()
	s.data[session.ID] = e
	return nil
}

// Load retrieves a copy of the session.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns session IDs ordered by creation time, then by first save.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]entry, 0, len(s.data))
	for _, e := range s.data {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := a.session.CreatedAt.Compare(b.session.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq) - int(b.seq)
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.session.ID
	}
	return ids, nil
}
