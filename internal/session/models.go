package session

import (
	"time"

	"github.com/google/uuid"
)

// Session ties a browser to the Kerberos ticket cache it uploaded at login.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Principal   string    `json:"principal"`
	Realm       string    `json:"realm"`
	TicketCache []byte    `json:"ticket_cache"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginResult is what a successful login hands back to the caller.
type LoginResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Principal string    `json:"principal"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token"`
}
