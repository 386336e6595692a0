package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kerbdash/pkg/requestcontext"
)

type stubValidator struct {
	claims *SessionClaims
	err    error
	seen   string
}

func (v *stubValidator) ValidateToken(token string) (*SessionClaims, error) {
	v.seen = token
	return v.claims, v.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func captureSession(got *uuid.UUID, principal *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = requestcontext.SessionID(r.Context())
		*principal = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSession(t *testing.T) {
	sessionID := uuid.New()

	t.Run("bearer token populates context", func(t *testing.T) {
		v := &stubValidator{claims: &SessionClaims{SessionID: sessionID, Principal: "alice@EXAMPLE.COM"}}
		var gotID uuid.UUID
		var gotPrincipal string
		h := RequireSession(v, discardLogger())(captureSession(&gotID, &gotPrincipal))

		req := httptest.NewRequest(http.MethodGet, "/api/chart", nil)
		req.Header.Set("Authorization", "Bearer tok-1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "tok-1", v.seen)
		assert.Equal(t, sessionID, gotID)
		assert.Equal(t, "alice@EXAMPLE.COM", gotPrincipal)
	})

	t.Run("cookie is accepted", func(t *testing.T) {
		v := &stubValidator{claims: &SessionClaims{SessionID: sessionID, Principal: "bob@EXAMPLE.COM"}}
		var gotID uuid.UUID
		var gotPrincipal string
		h := RequireSession(v, discardLogger())(captureSession(&gotID, &gotPrincipal))

		req := httptest.NewRequest(http.MethodGet, "/api/chart", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok-2"})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "tok-2", v.seen)
		assert.Equal(t, sessionID, gotID)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		v := &stubValidator{}
		h := RequireSession(v, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chart", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"unauthorized"`)
		assert.Contains(t, rr.Body.String(), `"error_description":"Missing session cookie or Authorization header"`)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		v := &stubValidator{err: errors.New("bad signature")}
		h := RequireSession(v, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/chart", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestLoadSession(t *testing.T) {
	t.Run("invalid token passes through anonymously", func(t *testing.T) {
		v := &stubValidator{err: errors.New("expired")}
		var gotID uuid.UUID
		var gotPrincipal string
		h := LoadSession(v)(captureSession(&gotID, &gotPrincipal))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stale"})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, uuid.Nil, gotID)
	})

	t.Run("valid token populates context", func(t *testing.T) {
		id := uuid.New()
		v := &stubValidator{claims: &SessionClaims{SessionID: id, Principal: "alice@EXAMPLE.COM"}}
		var gotID uuid.UUID
		var gotPrincipal string
		h := LoadSession(v)(captureSession(&gotID, &gotPrincipal))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "ok"})
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, id, gotID)
		assert.Equal(t, "alice@EXAMPLE.COM", gotPrincipal)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})

	t.Run("reuses inbound header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-42")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, "upstream-42", seen)
		assert.Equal(t, "upstream-42", rr.Header().Get(RequestIDHeader))
	})
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "192.168.1.1:1234", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "192.168.1.1:1234", "10.0.0.9"},
		{"remote addr", nil, "192.168.1.1:1234", "192.168.1.1"},
		{"ipv6 remote addr", nil, "[::1]:8080", "[::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestGate(t *testing.T) {
	t.Run("serializes requests", func(t *testing.T) {
		var inFlight, maxInFlight atomic.Int32
		h := NewGate(1, discardLogger()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
		}))

		done := make(chan struct{})
		for range 4 {
			go func() {
				h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/chart", nil))
				done <- struct{}{}
			}()
		}
		for range 4 {
			<-done
		}

		assert.Equal(t, int32(1), maxInFlight.Load())
	})

	t.Run("cancelled waiter gets 503", func(t *testing.T) {
		release := make(chan struct{})
		entered := make(chan struct{})
		h := NewGate(1, discardLogger()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-release
		}))

		go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/chart", nil))
		<-entered

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chart", nil).WithContext(ctx))
		close(release)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Body.String(), `"error":"unavailable"`)
		assert.Contains(t, rr.Body.String(), `"error_description":"request cancelled while queued"`)
	})
}
