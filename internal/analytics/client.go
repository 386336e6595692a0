// Package analytics queries the Kerberos-secured analytic database. Every call
// opens and closes its own connection so authentication always happens against
// the credential cache that is bound at that moment.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Drivers that can authenticate with the registered GSS provider.
const (
	DriverLibPQ = "postgres"
	DriverPGX   = "pgx"
)

const regionParameter = "$1"

var (
	// ErrConnect covers connection and credential rejection failures.
	ErrConnect = errors.New("analytic database connection failed")
	// ErrQuery covers failures executing the statement or reading rows.
	ErrQuery = errors.New("analytic database query failed")
)

// Point is one (x, y) pair from the result set.
type Point struct {
	X float64
	Y float64
}

// Config describes how to reach the database.
type Config struct {
	// Driver is DriverLibPQ (default) or DriverPGX.
	Driver         string
	Host           string
	Port           int
	Database       string
	User           string
	ServiceName    string
	SSLMode        string
	Query          string
	ConnectTimeout time.Duration
}

// DSN renders a lib/pq connection string that authenticates with GSSAPI.
func (c Config) DSN() string {
	parts := []string{
		"host=" + quote(c.Host),
		fmt.Sprintf("port=%d", c.Port),
		"dbname=" + quote(c.Database),
		"krbsrvname=" + quote(c.ServiceName),
		"sslmode=" + quote(c.SSLMode),
	}
	if c.User != "" {
		parts = append(parts, "user="+quote(c.User))
	}
	if c.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", timeoutSeconds(c.ConnectTimeout)))
	}
	return strings.Join(parts, " ")
}

// timeoutSeconds rounds d up to whole seconds. Zero means no timeout to the
// drivers, so any positive duration yields at least one.
func timeoutSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func quote(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func (c Config) driver() string {
	if c.Driver == "" {
		return DriverLibPQ
	}
	return c.Driver
}

// FiltersByRegion reports whether the configured query takes the region as $1.
func (c Config) FiltersByRegion() bool {
	return strings.Contains(c.Query, regionParameter)
}

// Opener opens a database handle. Tests substitute it to avoid a real server.
type Opener func(driverName, dsn string) (*sql.DB, error)

// Client runs the chart query.
type Client struct {
	cfg     Config
	open    Opener
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithOpener replaces sql.Open.
func WithOpener(open Opener) Option {
	return func(c *Client) {
		c.open = open
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New constructs a Client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		open:   sql.Open,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("kerbdash/analytics"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Points opens one connection, runs the configured query and returns every
// row. The region is bound only when the query declares a $1 placeholder.
func (c *Client) Points(ctx context.Context, region string) (points []Point, err error) {
	ctx, span := c.tracer.Start(ctx, "analytics.Points", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.cfg.Database),
		attribute.String("net.peer.name", c.cfg.Host),
		attribute.String("kerbdash.region", region),
	))
	start := time.Now()
	defer func() {
		c.metrics.ObserveQuery(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query failed")
		}
		span.End()
	}()

	db, err := c.open(c.cfg.driver(), c.cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrConnect, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			c.logger.WarnContext(ctx, "closing analytic database handle", "error", cerr)
		}
	}()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, describe(err))
	}

	var args []any
	if c.cfg.FiltersByRegion() {
		args = append(args, region)
	}
	rows, err := db.QueryContext(ctx, c.cfg.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, describe(err))
	}
	defer rows.Close()

	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrQuery, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, describe(err))
	}

	c.logger.DebugContext(ctx, "analytic query complete",
		"rows", len(points),
		"region_filtered", c.cfg.FiltersByRegion(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return points, nil
}

// describe adds the server's SQLSTATE to driver errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (sqlstate %s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (sqlstate %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
