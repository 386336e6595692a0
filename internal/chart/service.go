// Package chart builds the dashboard figure from one authenticated query.
package chart

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kerbdash/internal/analytics"
	"kerbdash/internal/audit"
	"kerbdash/internal/chart/metrics"
	"kerbdash/internal/credscope"
	dErrors "kerbdash/pkg/domain-errors"
	"kerbdash/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TicketSource,Querier,AuditPublisher

// TicketSource hands out the Kerberos ticket cache for a session.
type TicketSource interface {
	TicketCache(ctx context.Context, sessionID uuid.UUID) ([]byte, error)
}

// Querier fetches chart points. It is called inside a credential scope.
type Querier interface {
	Points(ctx context.Context, region string) ([]analytics.Point, error)
}

// AuditPublisher records served charts.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service answers chart requests.
type Service struct {
	tickets TicketSource
	querier Querier
	scopes  *credscope.Manager
	margin  Margin
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor sets the audit publisher.
func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithMargin overrides the fixed figure margin.
func WithMargin(m Margin) Option {
	return func(s *Service) {
		s.margin = m
	}
}

// NewService constructs a chart service.
func NewService(tickets TicketSource, querier Querier, scopes *credscope.Manager, opts ...Option) *Service {
	s := &Service{
		tickets: tickets,
		querier: querier,
		scopes:  scopes,
		margin:  DefaultMargin,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handle fetches the points for region under the caller's Kerberos credentials
// and returns the figure. The region only sets the title unless the configured
// query binds it. Either a complete figure is returned or an error.
func (s *Service) Handle(ctx context.Context, region Region) (*Result, error) {
	start := time.Now()
	requestID := requestcontext.RequestID(ctx)

	sessionID := requestcontext.SessionID(ctx)
	if sessionID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !region.Known() {
		s.logger.WarnContext(ctx, "chart requested for unknown region",
			"request_id", requestID,
			"region", string(region),
		)
	}

	ticket, err := s.tickets.TicketCache(ctx, sessionID)
	if err != nil {
		s.metrics.IncOutcome(string(dErrors.CodeOf(err)))
		return nil, err
	}

	points, err := credscope.With(ctx, s.scopes, ticket, func(ctx context.Context) ([]analytics.Point, error) {
		return s.querier.Points(ctx, string(region))
	})
	if err != nil {
		if errors.Is(err, credscope.ErrCleanup) {
			s.emit(ctx, audit.Event{
				Action:    audit.ActionScopeCleanupFailed,
				SessionID: sessionID.String(),
				Principal: requestcontext.Principal(ctx),
				Region:    string(region),
				RequestID: requestID,
				Reason:    err.Error(),
			})
		}
		derr := translate(err)
		s.metrics.IncOutcome(string(derr.Code))
		return nil, derr
	}

	result := s.build(region, points)

	s.metrics.IncOutcome("ok")
	s.metrics.ObserveHandleLatency(time.Since(start))
	s.emit(ctx, audit.Event{
		Action:    audit.ActionChartServed,
		SessionID: sessionID.String(),
		Principal: requestcontext.Principal(ctx),
		Region:    string(region),
		RequestID: requestID,
	})
	return result, nil
}

func (s *Service) build(region Region, points []analytics.Point) *Result {
	series := Series{
		X: make([]float64, 0, len(points)),
		Y: make([]float64, 0, len(points)),
	}
	for _, p := range points {
		series.X = append(series.X, p.X)
		series.Y = append(series.Y, p.Y)
	}
	return &Result{
		Data: []Series{series},
		Layout: Layout{
			Title:  string(region),
			Margin: s.margin,
		},
	}
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

// translate maps scope and query failures onto domain errors. A cleanup
// failure joined with a query failure keeps both in the chain.
func translate(err error) *dErrors.Error {
	switch {
	case errors.Is(err, credscope.ErrAcquire):
		return dErrors.Wrap(err, dErrors.CodeInternal, "credential scope unavailable")
	case errors.Is(err, analytics.ErrConnect):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "analytic database unavailable")
	case errors.Is(err, analytics.ErrQuery):
		return dErrors.Wrap(err, dErrors.CodeInternal, "chart query failed")
	case errors.Is(err, credscope.ErrCleanup):
		return dErrors.Wrap(err, dErrors.CodeInternal, "credential cleanup failed")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "chart request timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "chart request failed")
	}
}
