package audit

import "time"

// Action names a security-relevant step in the dashboard.
type Action string

const (
	ActionLogin         Action = "login"
	ActionLoginRejected Action = "login_rejected"
	ActionLogout        Action = "logout"
	ActionChartServed   Action = "chart_served"
	// ActionScopeCleanupFailed means a credential file may have outlived its request.
	ActionScopeCleanupFailed Action = "scope_cleanup_failed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	SessionID string    `json:"session_id,omitempty"`
	Principal string    `json:"principal,omitempty"`
	Region    string    `json:"region,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Client    string    `json:"client,omitempty"`
}
