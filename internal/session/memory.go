package session

import (
	"context"
	"slices"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	history  map[string][]HistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		history:  make(map[string][]HistoryEntry),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) PushHistory(ctx context.Context, id string, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append([]HistoryEntry{entry}, s.history[id]...)
	if len(h) > MaxHistory {
		h = h[:MaxHistory]
	}
	s.history[id] = h
	return nil
}

func (s *MemoryStore) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.history[id]), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	delete(s.history, id)
	return nil
}
