package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

// Store persists events for later listing.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
	DeleteBySession(ctx context.Context, sessionID string) error
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// Sink forwards events to an external system.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only: the store
// write is synchronous, sinks are fed either inline or through a Worker.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger

	// mu guards closed and the inbox send so Close never races an Emit.
	mu     sync.RWMutex
	closed bool
	inbox  chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithSink adds a sink that receives every event.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithAsyncBuffer hands sink delivery to a background worker with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

// WithLogger sets a logger for sink delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher constructs a Publisher and starts its worker when buffered.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		w := NewWorker(p.sinks, p.inbox, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run()
		}()
	}
	return p
}

// Emit stores the event and forwards it to the sinks. A full async buffer
// drops the sink delivery, never the stored copy. After Close it returns
// ErrClosed.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			p.logger.WarnContext(ctx, "audit buffer full, dropping sink delivery", "action", event.Action)
		}
		return nil
	}
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// List returns the events recorded for a session.
func (p *Publisher) List(ctx context.Context, sessionID string) ([]Event, error) {
	return p.store.ListBySession(ctx, sessionID)
}

// Forget drops the stored events of a session that has ended.
func (p *Publisher) Forget(ctx context.Context, sessionID string) error {
	return p.store.DeleteBySession(ctx, sessionID)
}

// Prune drops stored events of sessions idle since before cutoff.
func (p *Publisher) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	return p.store.DeleteIdle(ctx, cutoff)
}

// Close drains buffered events and stops the worker.
func (p *Publisher) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.inbox != nil {
			close(p.inbox)
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
}
