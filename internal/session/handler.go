package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kerbdash/internal/platform/middleware"
	dErrors "kerbdash/pkg/domain-errors"
	"kerbdash/pkg/platform/httputil"
	"kerbdash/pkg/requestcontext"
)

// MaxTicketCacheBytes bounds the login body.
const MaxTicketCacheBytes = 1 << 20

// Authenticator is the part of Service the HTTP layer needs.
type Authenticator interface {
	Login(ctx context.Context, ticketCache []byte) (*LoginResult, error)
	Logout(ctx context.Context, sessionID uuid.UUID) error
}

// Handler exposes login and logout.
type Handler struct {
	auth         Authenticator
	logger       *slog.Logger
	secureCookie bool
}

// NewHandler constructs a session handler. secureCookie marks the session
// cookie Secure, which browsers require outside localhost.
func NewHandler(auth Authenticator, logger *slog.Logger, secureCookie bool) *Handler {
	return &Handler{auth: auth, logger: logger, secureCookie: secureCookie}
}

// Register mounts session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
}

// HandleLogin handles POST /auth/login. The body is the raw credential cache.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxTicketCacheBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ticket cache too large"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	result, err := h.auth.Login(ctx, body)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"client_ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleLogout handles POST /auth/logout. It always clears the cookie and
// sends the browser back to the dashboard.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := requestcontext.SessionID(ctx); id != uuid.Nil {
		if err := h.auth.Logout(ctx, id); err != nil {
			h.logger.ErrorContext(ctx, "logout failed",
				"request_id", requestcontext.RequestID(ctx),
				"session_id", id.String(),
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
