package audit

import (
	"context"
	"sync"
	"time"
)

// DefaultEventsPerSession bounds how many events are kept for one session.
const DefaultEventsPerSession = 256

// InMemoryStore keeps the most recent events of each session. Older events
// are overwritten once a session reaches its cap.
type InMemoryStore struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string]*ring
}

// ring is a fixed-size buffer of events; next is the slot written next.
type ring struct {
	events []Event
	next   int
	full   bool
	last   time.Time
}

func (r *ring) add(e Event) {
	if len(r.events) < cap(r.events) {
		r.events = append(r.events, e)
	} else {
		r.events[r.next] = e
	}
	r.next = (r.next + 1) % cap(r.events)
	r.full = len(r.events) == cap(r.events)
	r.last = e.Timestamp
}

func (r *ring) list() []Event {
	out := make([]Event, 0, len(r.events))
	if !r.full {
		return append(out, r.events...)
	}
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// StoreOption configures the InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithEventsPerSession changes the per-session cap.
func WithEventsPerSession(n int) StoreOption {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		limit:    DefaultEventsPerSession,
		sessions: make(map[string]*ring),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[event.SessionID]
	if !ok {
		r = &ring{events: make([]Event, 0, s.limit)}
		s.sessions[event.SessionID] = r
	}
	r.add(event)
	return nil
}

// ListBySession returns a session's events, oldest first.
func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.sessions[sessionID]
	if !ok {
		return []Event{}, nil
	}
	return r.list(), nil
}

// DeleteBySession drops every event recorded for sessionID.
func (s *InMemoryStore) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// DeleteIdle drops sessions whose newest event is before cutoff and returns
// how many were removed.
func (s *InMemoryStore) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, r := range s.sessions {
		if r.last.Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}
