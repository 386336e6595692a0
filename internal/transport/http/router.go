package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"kerbdash/internal/chart"
	"kerbdash/internal/dashboard"
	"kerbdash/internal/platform/metrics"
	"kerbdash/internal/platform/middleware"
	"kerbdash/internal/session"
	"kerbdash/pkg/platform/httputil"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the handlers and middleware the router mounts. Metrics and
// HealthChecks may be nil.
type Deps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Validator    middleware.SessionValidator
	Gate         *middleware.Gate
	Chart        *chart.Handler
	Session      *session.Handler
	Dashboard    *dashboard.Handler
	HealthChecks map[string]HealthCheck
}

// NewRouter wires all public endpoints. The chart route is the only one that
// touches the process credential binding, so it alone sits behind the gate.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.AccessLog(d.Logger))

	r.Get("/health", healthHandler(d.HealthChecks))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoadSession(d.Validator))
		d.Dashboard.Register(r)
		d.Session.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(d.Validator, d.Logger))
		r.Use(d.Gate.Middleware)
		d.Chart.Register(r)
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		deps := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		httputil.WriteJSON(w, status, body)
	}
}
