package credscope

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for credential scopes.
type Metrics struct {
	Active          prometheus.Gauge
	Duration        prometheus.Histogram
	AcquireFailures prometheus.Counter
	CleanupFailures prometheus.Counter
}

// NewMetrics registers credential scope metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Active: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kerbdash_credscope_active",
			Help: "Credential scopes currently open; anything above 1 means the binding is being raced",
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kerbdash_credscope_duration_seconds",
			Help:    "Time a credential file stayed on disk",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		AcquireFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kerbdash_credscope_acquire_failures_total",
			Help: "Credential scopes that could not be created",
		}),
		CleanupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kerbdash_credscope_cleanup_failures_total",
			Help: "Credential scopes whose file or binding could not be released",
		}),
	}
}

// ScopeEntered records a newly opened scope.
func (m *Metrics) ScopeEntered() {
	if m != nil {
		m.Active.Inc()
	}
}

// ScopeExited records a closed scope and whether cleanup failed.
func (m *Metrics) ScopeExited(d time.Duration, cleanupFailed bool) {
	if m == nil {
		return
	}
	m.Active.Dec()
	m.Duration.Observe(d.Seconds())
	if cleanupFailed {
		m.CleanupFailures.Inc()
	}
}

// IncAcquireFailures records a failed scope entry.
func (m *Metrics) IncAcquireFailures() {
	if m != nil {
		m.AcquireFailures.Inc()
	}
}
