package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kerbdash/pkg/requestcontext"
)

func TestWithRequestMetadata(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-9")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.8", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	ctx = requestcontext.WithTime(ctx, at)

	t.Run("fills empty fields from the request", func(t *testing.T) {
		e := WithRequestMetadata(ctx, Event{Action: ActionChartServed})

		assert.Equal(t, "req-9", e.RequestID)
		assert.Equal(t, "10.0.0.8", e.ClientIP)
		assert.Contains(t, e.Client, "Firefox")
		assert.True(t, at.Equal(e.Timestamp))
	})

	t.Run("keeps fields already set", func(t *testing.T) {
		earlier := at.Add(-time.Minute)
		e := WithRequestMetadata(ctx, Event{RequestID: "req-1", Timestamp: earlier})

		assert.Equal(t, "req-1", e.RequestID)
		assert.True(t, earlier.Equal(e.Timestamp))
	})

	t.Run("no request metadata", func(t *testing.T) {
		e := WithRequestMetadata(context.Background(), Event{})

		assert.Empty(t, e.RequestID)
		assert.Empty(t, e.ClientIP)
		assert.Empty(t, e.Client)
		assert.False(t, e.Timestamp.IsZero())
	})
}
