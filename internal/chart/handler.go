package chart

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kerbdash/pkg/platform/httputil"
	"kerbdash/pkg/requestcontext"
)

// Renderer produces the figure for a region.
type Renderer interface {
	Handle(ctx context.Context, region Region) (*Result, error)
}

// Handler exposes the chart service to the dashboard page.
type Handler struct {
	service Renderer
	logger  *slog.Logger
}

// NewHandler constructs a chart handler.
func NewHandler(service Renderer, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts chart endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/chart", h.HandleChart)
}

// HandleChart handles GET /api/chart?region=LA.
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	region := Region(strings.TrimSpace(r.URL.Query().Get("region")))
	if region == "" {
		region = DefaultRegion
	}

	result, err := h.service.Handle(ctx, region)
	if err != nil {
		h.logger.ErrorContext(ctx, "chart request failed",
			"request_id", requestID,
			"region", string(region),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "chart served",
		"request_id", requestID,
		"region", string(region),
		"points", len(result.Data[0].X),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
