package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"

	dErrors "kerbdash/pkg/domain-errors"
	"kerbdash/pkg/platform/httputil"
	"kerbdash/pkg/requestcontext"
)

// Gate admits at most limit concurrent requests to the wrapped handler.
// Waiting requests queue until a slot frees or their context ends.
type Gate struct {
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewGate builds a gate. A limit below one is treated as one.
func NewGate(limit int64, logger *slog.Logger) *Gate {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{sem: semaphore.NewWeighted(limit), logger: logger}
}

// Middleware wraps next so it runs inside the gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.logger.WarnContext(ctx, "request abandoned while waiting for gate",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "request cancelled while queued"))
			return
		}
		defer g.sem.Release(1)
		next.ServeHTTP(w, r)
	})
}
