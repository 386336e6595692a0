package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kerbdash/internal/analytics"
	"kerbdash/internal/audit"
	"kerbdash/internal/chart"
	chartmetrics "kerbdash/internal/chart/metrics"
	"kerbdash/internal/credscope"
	"kerbdash/internal/dashboard"
	jwttoken "kerbdash/internal/jwt_token"
	"kerbdash/internal/kerberos"
	"kerbdash/internal/platform/config"
	"kerbdash/internal/platform/httpserver"
	"kerbdash/internal/platform/logger"
	"kerbdash/internal/platform/metrics"
	"kerbdash/internal/platform/middleware"
	"kerbdash/internal/platform/redis"
	"kerbdash/internal/session"
	httptransport "kerbdash/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogFormat, cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("kerbdash exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A crashed predecessor may have left credential files behind.
	if n, err := credscope.Sweep(cfg.Kerberos.CCacheDir); err != nil {
		log.Warn("failed to sweep stale credential files", "dir", cfg.Kerberos.CCacheDir, "error", err)
	} else if n > 0 {
		log.Warn("removed stale credential files", "dir", cfg.Kerberos.CCacheDir, "count", n)
	}

	if err := kerberos.Register(kerberos.GSSConfig{
		Krb5ConfPath: cfg.Kerberos.Krb5ConfPath,
		EnvVar:       credscope.DefaultEnvVar,
	}); err != nil {
		return err
	}

	policy, err := credscope.ParseBindingPolicy(cfg.Kerberos.BindingPolicy)
	if err != nil {
		return err
	}
	scopes := credscope.New(
		credscope.WithDir(cfg.Kerberos.CCacheDir),
		credscope.WithBindingPolicy(policy),
		credscope.WithLogger(log),
		credscope.WithMetrics(credscope.NewMetrics()),
	)

	publisher, closeAudit, err := newAuditPublisher(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	healthChecks := map[string]httptransport.HealthCheck{}
	var store session.Store = session.NewInMemoryStore()
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		store = session.NewRedisStore(rdb.Client)
		healthChecks["redis"] = rdb.Health
		log.Info("using redis session store")
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, "kerbdash")
	sessions := session.NewService(store, jwtService,
		session.WithLogger(log),
		session.WithAuditor(publisher),
		session.WithMaxLifetime(cfg.Server.SessionLifetime),
	)
	go runEviction(ctx, sessions, publisher, cfg.Server.EvictionInterval, cfg.Server.SessionLifetime, log)

	db := analytics.New(analytics.Config{
		Driver:         cfg.Analytics.Driver,
		Host:           cfg.Analytics.Host,
		Port:           cfg.Analytics.Port,
		Database:       cfg.Analytics.Database,
		User:           cfg.Analytics.User,
		ServiceName:    cfg.Analytics.ServiceName,
		SSLMode:        cfg.Analytics.SSLMode,
		Query:          cfg.Analytics.Query,
		ConnectTimeout: cfg.Analytics.ConnectTimeout,
	}, analytics.WithLogger(log), analytics.WithMetrics(analytics.NewMetrics()))

	charts := chart.NewService(sessions, db, scopes,
		chart.WithLogger(log),
		chart.WithMetrics(chartmetrics.New()),
		chart.WithAuditor(publisher),
	)

	page, err := dashboard.NewHandler(dashboard.Page{
		Title:         cfg.Dashboard.Title,
		Regions:       cfg.Dashboard.Regions,
		DefaultRegion: cfg.Dashboard.DefaultRegion,
		PlotlyURL:     cfg.Dashboard.PlotlyURL,
	}, log)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      metrics.New(),
		Validator:    jwttoken.NewJWTServiceAdapter(jwtService),
		Gate:         middleware.NewGate(cfg.Server.ChartConcurrency, log),
		Chart:        chart.NewHandler(charts, log),
		Session:      session.NewHandler(sessions, log, cfg.Server.SecureCookies),
		Dashboard:    page,
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting kerbdash", "addr", cfg.Server.Addr, "database", cfg.Analytics.Host)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// newAuditPublisher builds the audit publisher, adding the Kafka sink when
// brokers are configured. The returned func drains and closes both.
func newAuditPublisher(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (*audit.Publisher, func(), error) {
	store := audit.NewInMemoryStore()
	if len(cfg.Brokers) == 0 {
		p := audit.NewPublisher(store, audit.WithLogger(log))
		return p, p.Close, nil
	}

	sink, err := audit.NewKafkaSink(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := sink.EnsureTopic(ensureCtx, cfg.Partitions, cfg.Replication); err != nil {
		sink.Close()
		return nil, nil, err
	}
	log.Info("audit events forwarded to kafka", "topic", cfg.Topic, "brokers", cfg.Brokers)

	p := audit.NewPublisher(store,
		audit.WithSink(sink),
		audit.WithAsyncBuffer(cfg.BufferEvents),
		audit.WithLogger(log),
	)
	return p, func() {
		p.Close()
		sink.Close()
	}, nil
}

// runEviction drops expired sessions, then audit history idle for longer
// than a session can live, every interval until ctx is done.
func runEviction(ctx context.Context, sessions *session.Service, publisher *audit.Publisher, interval, lifetime time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			evicted, err := sessions.EvictExpired(ctx, now)
			if err != nil {
				log.Warn("session eviction failed", "error", err)
			}
			pruned, err := publisher.Prune(ctx, now.Add(-lifetime))
			if err != nil {
				log.Warn("audit pruning failed", "error", err)
			}
			if evicted > 0 || pruned > 0 {
				log.Info("evicted expired state", "sessions", evicted, "audit_sessions", pruned)
			}
		}
	}
}
