package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"kerbdash/pkg/requestcontext"
)

// WithSession adds a session ID and principal to the request context.
// This simulates what the session middleware does for authenticated requests.
func WithSession(req *http.Request, sessionID uuid.UUID, principal string) *http.Request {
	ctx := requestcontext.WithSession(req.Context(), sessionID, principal)
	return req.WithContext(ctx)
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
