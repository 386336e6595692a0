package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the whole process configuration, read once at startup.
type Config struct {
	Server    Server
	Redis     RedisConfig
	Analytics AnalyticsConfig
	Kerberos  KerberosConfig
	Audit     AuditConfig
	Dashboard DashboardConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	SessionLifetime time.Duration
	// EvictionInterval is how often expired sessions and idle audit
	// history are dropped from memory.
	EvictionInterval time.Duration
	SecureCookies    bool
	ShutdownTimeout  time.Duration
	// ChartConcurrency bounds concurrent chart requests. The credential
	// binding is process-wide, so anything above 1 is unsafe.
	ChartConcurrency int64
	LogFormat        string
	LogLevel         string
}

// RedisConfig configures the optional session store. An empty URL keeps
// sessions in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AnalyticsConfig points at the Kerberos-secured analytic database. Both
// drivers speak the Postgres wire protocol, so Host and Port must name a
// Postgres-protocol endpoint (Postgres itself or a gateway in front of the
// warehouse), never an Impala HiveServer2 port such as 21050.
type AnalyticsConfig struct {
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

// KerberosConfig locates krb5.conf and the credential scope directory.
type KerberosConfig struct {
	Krb5ConfPath  string
	CCacheDir     string
	BindingPolicy string
}

// AuditConfig enables the Kafka audit sink when Brokers is set.
type AuditConfig struct {
	Brokers      []string
	Topic        string
	Partitions   int32
	Replication  int16
	BufferEvents int
}

// DashboardConfig is the static page content.
type DashboardConfig struct {
	Title         string
	Regions       []string
	DefaultRegion string
	PlotlyURL     string
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:             getEnv("KERBDASH_ADDR", ":8050"),
			JWTSigningKey:    getEnv("KERBDASH_JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:        getEnv("KERBDASH_JWT_ISSUER", "kerbdash"),
			SessionLifetime:  getDuration("KERBDASH_SESSION_LIFETIME", 8*time.Hour),
			EvictionInterval: getDuration("KERBDASH_EVICTION_INTERVAL", time.Minute),
			SecureCookies:    getBool("KERBDASH_SECURE_COOKIES", false),
			ShutdownTimeout:  getDuration("KERBDASH_SHUTDOWN_TIMEOUT", 10*time.Second),
			ChartConcurrency: int64(getInt("KERBDASH_CHART_CONCURRENCY", 1)),
			LogFormat:        getEnv("LOG_FORMAT", "json"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("KERBDASH_REDIS_URL"),
			PoolSize:     getInt("KERBDASH_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("KERBDASH_REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  getDuration("KERBDASH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("KERBDASH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("KERBDASH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Analytics: AnalyticsConfig{
			Driver:         getEnv("KERBDASH_DB_DRIVER", "postgres"),
			Host:           getEnv("KERBDASH_DB_HOST", "localhost"),
			Port:           getInt("KERBDASH_DB_PORT", 5432),
			Database:       getEnv("KERBDASH_DB_NAME", "poc"),
			User:           os.Getenv("KERBDASH_DB_USER"),
			ServiceName:    getEnv("KERBDASH_DB_SERVICE", "impala"),
			SSLMode:        getEnv("KERBDASH_DB_SSLMODE", "disable"),
			Query:          getEnv("KERBDASH_DB_QUERY", "SELECT x, y FROM t3"),
			ConnectTimeout: getDuration("KERBDASH_DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Kerberos: KerberosConfig{
			Krb5ConfPath:  os.Getenv("KRB5_CONFIG"),
			CCacheDir:     getEnv("KERBDASH_CCACHE_DIR", os.TempDir()),
			BindingPolicy: getEnv("KERBDASH_BINDING_POLICY", "clear"),
		},
		Audit: AuditConfig{
			Brokers:      getList("KERBDASH_KAFKA_BROKERS"),
			Topic:        getEnv("KERBDASH_AUDIT_TOPIC", "kerbdash.audit"),
			Partitions:   int32(getInt("KERBDASH_AUDIT_PARTITIONS", 1)),
			Replication:  int16(getInt("KERBDASH_AUDIT_REPLICATION", 1)),
			BufferEvents: getInt("KERBDASH_AUDIT_BUFFER", 256),
		},
		Dashboard: DashboardConfig{
			Title:         getEnv("KERBDASH_TITLE", "Sample App"),
			Regions:       getListDefault("KERBDASH_REGIONS", []string{"LA", "NYC", "MTL"}),
			DefaultRegion: getEnv("KERBDASH_DEFAULT_REGION", "LA"),
			PlotlyURL:     os.Getenv("KERBDASH_PLOTLY_URL"),
		},
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("KERBDASH_ADDR must not be empty"))
	}
	if c.Server.JWTSigningKey == "" {
		errs = append(errs, errors.New("KERBDASH_JWT_SIGNING_KEY must not be empty"))
	}
	if c.Server.SecureCookies && c.Server.JWTSigningKey == devSigningKey {
		errs = append(errs, errors.New("KERBDASH_JWT_SIGNING_KEY must be set when secure cookies are enabled"))
	}
	if c.Server.ChartConcurrency != 1 {
		errs = append(errs, fmt.Errorf("KERBDASH_CHART_CONCURRENCY must be 1, got %d", c.Server.ChartConcurrency))
	}
	if c.Server.EvictionInterval <= 0 {
		errs = append(errs, fmt.Errorf("KERBDASH_EVICTION_INTERVAL must be positive, got %s", c.Server.EvictionInterval))
	}
	if c.Analytics.Host == "" {
		errs = append(errs, errors.New("KERBDASH_DB_HOST must not be empty"))
	}
	if c.Analytics.Port <= 0 || c.Analytics.Port > 65535 {
		errs = append(errs, fmt.Errorf("KERBDASH_DB_PORT out of range: %d", c.Analytics.Port))
	}
	if strings.TrimSpace(c.Analytics.Query) == "" {
		errs = append(errs, errors.New("KERBDASH_DB_QUERY must not be empty"))
	}
	switch c.Analytics.Driver {
	case "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("KERBDASH_DB_DRIVER must be postgres or pgx, got %q", c.Analytics.Driver))
	}
	switch c.Kerberos.BindingPolicy {
	case "clear", "restore":
	default:
		errs = append(errs, fmt.Errorf("KERBDASH_BINDING_POLICY must be clear or restore, got %q", c.Kerberos.BindingPolicy))
	}
	if len(c.Dashboard.Regions) == 0 {
		errs = append(errs, errors.New("KERBDASH_REGIONS must list at least one region"))
	}
	if len(c.Audit.Brokers) > 0 && c.Audit.Topic == "" {
		errs = append(errs, errors.New("KERBDASH_AUDIT_TOPIC must not be empty when brokers are set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getListDefault(key string, fallback []string) []string {
	if out := getList(key); len(out) > 0 {
		return out
	}
	return fallback
}
