package audit

import (
	"context"

	"kerbdash/pkg/platform/device"
	"kerbdash/pkg/requestcontext"
)

// WithRequestMetadata fills the request ID, client IP, client label and
// timestamp of event from ctx. Fields already set are kept.
func WithRequestMetadata(ctx context.Context, event Event) Event {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Client == "" {
		event.Client = device.Label(requestcontext.UserAgent(ctx))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	return event
}
