package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"kerbdash/pkg/platform/sentinel"
)

var (
	redisGetDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kerbdash_session_redis_get_duration_ms",
		Help:    "Latency of session lookups in Redis in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	// Redis key prefix for sessions
	sessionKeyPrefix = "kerbdash:session:"
)

// RedisStore is a Redis-backed session store for deployments running more
// than one instance. Keys expire with the session.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithClock overrides the time source used to compute key TTLs.
func WithClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func key(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

// Create stores the session with a TTL matching its remaining lifetime.
func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("store session %s: %w", session.ID, sentinel.ErrExpired)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", session.ID, err)
	}
	return nil
}

// Get returns the session or sentinel.ErrNotFound once the key is gone.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	start := time.Now()
	defer func() {
		redisGetDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	payload, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, key(id)).Err()
}

// DeleteExpired is a no-op: every key carries a TTL ending at the session's
// expiry, so Redis has already dropped them.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) ([]uuid.UUID, error) {
	return nil, nil
}
