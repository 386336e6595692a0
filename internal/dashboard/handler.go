// Package dashboard serves the single page that hosts the region dropdown
// and the chart.
package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kerbdash/pkg/requestcontext"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DefaultPlotlyURL is the chart renderer loaded by the page.
const DefaultPlotlyURL = "https://cdn.plot.ly/plotly-2.35.2.min.js"

// Page is the static part of the dashboard.
type Page struct {
	Title         string
	Regions       []string
	DefaultRegion string
	PlotlyURL     string
}

type view struct {
	Page
	Authenticated bool
	Principal     string
}

// Handler renders the dashboard page.
type Handler struct {
	page   Page
	tmpl   *template.Template
	logger *slog.Logger
}

// NewHandler parses the embedded template. It fails only if the template
// itself is broken.
func NewHandler(page Page, logger *slog.Logger) (*Handler, error) {
	if page.PlotlyURL == "" {
		page.PlotlyURL = DefaultPlotlyURL
	}
	tmpl, err := template.New("index.html.tmpl").
		Funcs(sprig.HtmlFuncMap()).
		ParseFS(templateFS, "templates/index.html.tmpl")
	if err != nil {
		return nil, err
	}
	return &Handler{page: page, tmpl: tmpl, logger: logger}, nil
}

// Register mounts the page on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleIndex)
}

// HandleIndex renders the dashboard, or the login form for anonymous visitors.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := view{
		Page:          h.page,
		Authenticated: requestcontext.SessionID(ctx) != uuid.Nil,
		Principal:     requestcontext.Principal(ctx),
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, v); err != nil {
		h.logger.ErrorContext(ctx, "failed to render dashboard",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
