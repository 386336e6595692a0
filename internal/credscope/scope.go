// Package credscope materializes a Kerberos credential cache as a short-lived,
// owner-only file and publishes its location through the process environment
// for the duration of one operation.
//
// The binding is process-wide. Two scopes active at the same time overwrite
// each other's binding, so callers must serialize work that enters a scope
// (see internal/platform/middleware/gate). The scope itself holds no lock.
//
// Usage:
//
//	points, err := credscope.With(ctx, mgr, ticket, func(ctx context.Context) ([]Point, error) {
//		return db.Points(ctx, region)
//	})
package credscope

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultEnvVar is the variable Kerberos libraries consult for the ccache location.
	DefaultEnvVar = "KRB5CCNAME"

	filePrefix  = "krb5cc_scope_"
	filePattern = filePrefix + "*"
	fileMode    = 0o600
)

var (
	// ErrAcquire is returned when the scope could not be set up. The operation
	// did not run and the environment was not touched.
	ErrAcquire = errors.New("credential scope acquisition failed")

	// ErrCleanup is returned when the credential file or binding could not be
	// released. It is joined with the operation's own error, if any.
	ErrCleanup = errors.New("credential scope cleanup failed")
)

// BindingPolicy decides what happens to the environment binding on exit.
type BindingPolicy int

const (
	// ClearBinding unsets the variable unconditionally.
	ClearBinding BindingPolicy = iota
	// RestoreBinding puts back whatever value was present on entry.
	RestoreBinding
)

func (p BindingPolicy) String() string {
	switch p {
	case RestoreBinding:
		return "restore"
	default:
		return "clear"
	}
}

// ParseBindingPolicy accepts "clear" or "restore".
func ParseBindingPolicy(s string) (BindingPolicy, error) {
	switch s {
	case "", "clear":
		return ClearBinding, nil
	case "restore":
		return RestoreBinding, nil
	default:
		return ClearBinding, fmt.Errorf("unknown binding policy %q", s)
	}
}

// Manager creates scopes. It is safe to share, but the scopes it creates are not
// safe to have open concurrently.
type Manager struct {
	dir     string
	envVar  string
	policy  BindingPolicy
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	remove  func(string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithDir sets the directory for credential files. Defaults to os.TempDir().
func WithDir(dir string) Option {
	return func(m *Manager) {
		m.dir = dir
	}
}

// WithEnvVar overrides the environment variable used for the binding.
func WithEnvVar(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.envVar = name
		}
	}
}

// WithBindingPolicy selects how the binding is reset on exit.
func WithBindingPolicy(p BindingPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLogger sets a logger for scope lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New constructs a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		envVar: DefaultEnvVar,
		policy: ClearBinding,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("kerbdash/credscope"),
		remove: os.Remove,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// EnvVar returns the name of the environment variable the manager binds.
func (m *Manager) EnvVar() string { return m.envVar }

// Scope is one live credential binding. Close releases it.
type Scope struct {
	path     string
	envVar   string
	prior    string
	hadPrior bool
	policy   BindingPolicy
	remove   func(string) error
	entered  time.Time
	metrics  *Metrics
	closed   bool
}

// Enter writes ticketCache to a new owner-only file and points the binding at it.
func (m *Manager) Enter(ticketCache []byte) (*Scope, error) {
	if len(ticketCache) == 0 {
		return nil, fmt.Errorf("%w: empty ticket cache", ErrAcquire)
	}

	path, err := m.writeFile(ticketCache)
	if err != nil {
		m.metrics.IncAcquireFailures()
		return nil, err
	}

	prior, hadPrior := os.LookupEnv(m.envVar)
	if err := os.Setenv(m.envVar, Binding(path)); err != nil {
		_ = m.remove(path)
		m.metrics.IncAcquireFailures()
		return nil, fmt.Errorf("%w: set %s: %w", ErrAcquire, m.envVar, err)
	}

	m.metrics.ScopeEntered()
	m.logger.Debug("credential scope entered", "env_var", m.envVar, "path", path)

	return &Scope{
		path:     path,
		envVar:   m.envVar,
		prior:    prior,
		hadPrior: hadPrior,
		policy:   m.policy,
		remove:   m.remove,
		entered:  time.Now(),
		metrics:  m.metrics,
	}, nil
}

// writeFile creates the credential file with owner-only permissions before any
// bytes are written. On failure nothing is left on disk.
func (m *Manager) writeFile(data []byte) (string, error) {
	f, err := os.CreateTemp(m.dir, filePattern)
	if err != nil {
		return "", fmt.Errorf("%w: create credential file: %w", ErrAcquire, err)
	}
	path := f.Name()

	fail := func(step string, err error) (string, error) {
		_ = f.Close()
		_ = m.remove(path)
		return "", fmt.Errorf("%w: %s credential file: %w", ErrAcquire, step, err)
	}

	if err := f.Chmod(fileMode); err != nil {
		return fail("chmod", err)
	}
	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := f.Close(); err != nil {
		_ = m.remove(path)
		return "", fmt.Errorf("%w: close credential file: %w", ErrAcquire, err)
	}
	return path, nil
}

// Path is the credential file location.
func (s *Scope) Path() string { return s.path }

// Close removes the credential file and resets the binding. Both steps are
// always attempted; it is safe to call more than once.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.policy == RestoreBinding && s.hadPrior {
		if err := os.Setenv(s.envVar, s.prior); err != nil {
			errs = append(errs, fmt.Errorf("%w: restore %s: %w", ErrCleanup, s.envVar, err))
		}
	} else if err := os.Unsetenv(s.envVar); err != nil {
		errs = append(errs, fmt.Errorf("%w: unset %s: %w", ErrCleanup, s.envVar, err))
	}

	if err := s.remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("%w: remove %s: %w", ErrCleanup, s.path, err))
	}

	s.metrics.ScopeExited(time.Since(s.entered), len(errs) > 0)
	return errors.Join(errs...)
}

// Binding formats a file path as a ccache name.
func Binding(path string) string {
	return "FILE:" + path
}

// With runs op inside a fresh credential scope. The file is removed and the
// binding reset on every exit path, including panics. If both op and cleanup
// fail the caller receives both errors joined.
func With[T any](ctx context.Context, m *Manager, ticketCache []byte, op func(context.Context) (T, error)) (result T, err error) {
	ctx, span := m.tracer.Start(ctx, "credscope.With")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "credential scope failed")
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("credscope.env_var", m.envVar), attribute.Int("credscope.ticket_bytes", len(ticketCache)))

	scope, err := m.Enter(ticketCache)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			m.logger.ErrorContext(ctx, "credential scope cleanup failed", "path", scope.Path(), "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	return op(ctx)
}

// Sweep removes credential files left behind by a previous process. It should
// only run while no scope is open.
func Sweep(dir string) (int, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return 0, fmt.Errorf("sweep credential files: %w", err)
	}
	var (
		removed int
		errs    []error
	)
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
