// Package session lets a browser log in with a Kerberos ticket cache and
// hands that cache back to the chart handler for each request.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kerbdash/internal/audit"
	"kerbdash/internal/kerberos"
	dErrors "kerbdash/pkg/domain-errors"
	"kerbdash/pkg/platform/sentinel"
	"kerbdash/pkg/requestcontext"
)

// DefaultMaxLifetime caps a session even when the ticket outlives it.
const DefaultMaxLifetime = 8 * time.Hour

// Inspector reads identity and lifetime out of a ticket cache.
type Inspector func(ticketCache []byte) (*kerberos.TicketInfo, error)

// TokenIssuer signs the session token placed in the cookie.
type TokenIssuer interface {
	GenerateSessionToken(sessionID uuid.UUID, principal string, expiresIn time.Duration) (string, error)
}

// AuditPublisher records login and logout and forgets ended sessions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	Forget(ctx context.Context, sessionID string) error
}

// Service manages ticket-cache-backed sessions.
type Service struct {
	store       Store
	tokens      TokenIssuer
	inspect     Inspector
	maxLifetime time.Duration
	logger      *slog.Logger
	auditor     AuditPublisher
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithInspector replaces kerberos.Inspect.
func WithInspector(fn Inspector) Option {
	return func(s *Service) {
		s.inspect = fn
	}
}

func WithMaxLifetime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxLifetime = d
		}
	}
}

func NewService(store Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tokens:      tokens,
		inspect:     kerberos.Inspect,
		maxLifetime: DefaultMaxLifetime,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login validates ticketCache and opens a session for its principal. The
// session ends when the ticket does, or after the maximum lifetime.
func (s *Service) Login(ctx context.Context, ticketCache []byte) (*LoginResult, error) {
	now := requestcontext.Now(ctx)

	if len(ticketCache) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "ticket cache is required")
	}

	info, err := s.inspect(ticketCache)
	if err != nil {
		s.reject(ctx, "", err.Error())
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid ticket cache")
	}
	if info.Expired(now) {
		s.reject(ctx, info.Principal, "ticket expired")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "ticket cache has expired")
	}

	expiresAt := info.EndTime
	if limit := now.Add(s.maxLifetime); limit.Before(expiresAt) {
		expiresAt = limit
	}

	sess := &Session{
		ID:          uuid.New(),
		Principal:   info.Principal,
		Realm:       info.Realm,
		TicketCache: append([]byte(nil), ticketCache...),
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	token, err := s.tokens.GenerateSessionToken(sess.ID, sess.Principal, expiresAt.Sub(now))
	if err != nil {
		_ = s.store.Delete(ctx, sess.ID)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session token")
	}

	s.logger.InfoContext(ctx, "session created",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sess.ID.String(),
		"principal", sess.Principal,
		"has_tgt", info.HasTGT,
		"expires_at", expiresAt,
	)
	s.emit(ctx, audit.Event{
		Action:    audit.ActionLogin,
		SessionID: sess.ID.String(),
		Principal: sess.Principal,
	})

	return &LoginResult{
		SessionID: sess.ID,
		Principal: sess.Principal,
		ExpiresAt: expiresAt,
		Token:     token,
	}, nil
}

// TicketCache returns a copy of the ticket cache stored for sessionID.
func (s *Service) TicketCache(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store unavailable")
	}
	if sess.Expired(requestcontext.Now(ctx)) {
		if err := s.store.Delete(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "failed to evict expired session",
				"session_id", sessionID.String(),
				"error", err,
			)
		}
		return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeUnauthorized, "session has expired")
	}
	return append([]byte(nil), sess.TicketCache...), nil
}

// Logout ends the session. Logging out an unknown session succeeds.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	s.emit(ctx, audit.Event{
		Action:    audit.ActionLogout,
		SessionID: sessionID.String(),
		Principal: requestcontext.Principal(ctx),
	})
	s.forget(ctx, sessionID)
	return nil
}

// EvictExpired removes sessions whose lifetime ended before now, along with
// their ticket caches and stored audit events. It returns how many were removed.
func (s *Service) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to evict expired sessions")
	}
	for _, id := range ids {
		s.forget(ctx, id)
	}
	return len(ids), nil
}

func (s *Service) forget(ctx context.Context, sessionID uuid.UUID) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Forget(ctx, sessionID.String()); err != nil {
		s.logger.WarnContext(ctx, "failed to drop audit events of ended session",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
}

func (s *Service) reject(ctx context.Context, principal, reason string) {
	s.logger.WarnContext(ctx, "login rejected",
		"request_id", requestcontext.RequestID(ctx),
		"principal", principal,
		"reason", reason,
	)
	s.emit(ctx, audit.Event{
		Action:    audit.ActionLoginRejected,
		Principal: principal,
		Reason:    reason,
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.WithRequestMetadata(ctx, event)); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
