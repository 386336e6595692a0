package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	dErrors "kerbdash/pkg/domain-errors"
	"kerbdash/pkg/platform/httputil"
	"kerbdash/pkg/requestcontext"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "kerbdash_session"

// SessionValidator defines the interface for validating session tokens
type SessionValidator interface {
	ValidateToken(tokenString string) (*SessionClaims, error)
}

// SessionClaims represents the claims we expect from the validator
type SessionClaims struct {
	SessionID uuid.UUID
	Principal string
	JTI       string
}

// TokenFromRequest returns the session token from the Authorization header,
// falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession rejects requests without a valid session token and places
// the session ID and principal in the request context.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing session cookie or Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx = requestcontext.WithSession(ctx, claims.SessionID, claims.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadSession is the permissive variant of RequireSession: a valid token
// populates the context, anything else passes through anonymously.
func LoadSession(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithSession(r.Context(), claims.SessionID, claims.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, description))
}
