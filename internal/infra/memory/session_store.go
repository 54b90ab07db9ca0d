package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. It hands
// out deep copies so callers never share mutable state with the store, and
// keeps a PIN index covering only non-finished sessions.
type SessionStore struct {
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	pins     map[string]string // pin -> session id, live sessions only
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		clock:    time.Now,
		sessions: make(map[string]*domain.Session),
		pins:     make(map[string]string),
	}
}

// NewSessionStoreWithClock is test-only for deterministic cleanup cutoffs.
func NewSessionStoreWithClock(clock func() time.Time) *SessionStore {
	s := NewSessionStore()
	s.clock = clock
	return s
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	if session.Status != domain.StatusFinished {
		s.pins[session.PIN] = session.ID
	}
	return nil
}

func (s *SessionStore) FindByID(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) FindByPIN(_ context.Context, pin string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) Update(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[session.ID] = session.Clone()
	// A finished session gives up its PIN so new sessions can reuse it.
	if session.Status == domain.StatusFinished {
		if id, ok := s.pins[session.PIN]; ok && id == session.ID {
			delete(s.pins, session.PIN)
		}
	}
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if owner, ok := s.pins[session.PIN]; ok && owner == id {
		delete(s.pins, session.PIN)
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) FindActive(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*domain.Session
	for _, session := range s.sessions {
		if session.Status == domain.StatusActive {
			active = append(active, session.Clone())
		}
	}
	return active, nil
}

func (s *SessionStore) CleanupOlderThan(_ context.Context, age time.Duration) (int, error) {
	cutoff := s.clock().Add(-age)
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, session := range s.sessions {
		if session.Status == domain.StatusFinished && session.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}
