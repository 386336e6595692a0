package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"kerbdash/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in process memory. Expired sessions stay
// until DeleteExpired runs or the service evicts them on access.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[uuid.UUID]*Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	cp.TicketCache = append([]byte(nil), session.TicketCache...)
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *session
	cp.TicketCache = append([]byte(nil), session.TicketCache...)
	return &cp, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpired removes all sessions that have expired as of the given time.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []uuid.UUID
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}
