package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists sessions. Get returns sentinel.ErrNotFound for unknown IDs
// and Delete of an unknown ID is not an error.
type Store interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteExpired removes sessions that expired at or before now and
	// returns their IDs.
	DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
