package audit

import (
	"context"
	"log/slog"
	"time"
)

const sinkWriteTimeout = 5 * time.Second

// Worker consumes audit events from a channel and forwards them to sinks. It
// keeps slow sinks off the request path.
type Worker struct {
	sinks  []Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sinks []Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sinks: sinks, inbox: inbox, logger: logger}
}

// Run delivers events until the inbox is closed.
func (w *Worker) Run() {
	for event := range w.inbox {
		for _, sink := range w.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
			if err := sink.Write(ctx, event); err != nil {
				w.logger.Error("audit sink write failed",
					"action", event.Action,
					"session_id", event.SessionID,
					"error", err,
				)
			}
			cancel()
		}
	}
}
