package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kerbdash/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func newSession() *Session {
	return &Session{
		ID:          uuid.New(),
		Principal:   "alice@EXAMPLE.COM",
		Realm:       "EXAMPLE.COM",
		TicketCache: []byte("TEST"),
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func (s *InMemoryStoreSuite) TestLookup() {
	s.Run("returns stored session when found", func() {
		sess := newSession()
		s.Require().NoError(s.store.Create(context.Background(), sess))

		found, err := s.store.Get(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(sess, found)
	})

	s.Run("returns ErrNotFound when session does not exist", func() {
		_, err := s.store.Get(context.Background(), uuid.New())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestStoredTicketIsIsolated() {
	sess := newSession()
	s.Require().NoError(s.store.Create(context.Background(), sess))
	sess.TicketCache[0] = 'X'

	found, err := s.store.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal([]byte("TEST"), found.TicketCache)
}

func (s *InMemoryStoreSuite) TestDelete() {
	sess := newSession()
	s.Require().NoError(s.store.Create(context.Background(), sess))
	s.Require().NoError(s.store.Delete(context.Background(), sess.ID))

	_, err := s.store.Get(context.Background(), sess.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Delete(context.Background(), sess.ID))
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	now := time.Now()
	expired := newSession()
	expired.ExpiresAt = now.Add(-time.Minute)
	boundary := newSession()
	boundary.ExpiresAt = now
	live := newSession()
	for _, sess := range []*Session{expired, boundary, live} {
		s.Require().NoError(s.store.Create(context.Background(), sess))
	}

	deleted, err := s.store.DeleteExpired(context.Background(), now)
	s.Require().NoError(err)
	s.ElementsMatch([]uuid.UUID{expired.ID, boundary.ID}, deleted)

	_, err = s.store.Get(context.Background(), expired.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Get(context.Background(), live.ID)
	s.NoError(err)
}
