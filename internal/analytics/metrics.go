package analytics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for analytic queries.
type Metrics struct {
	QueryLatency *prometheus.HistogramVec
}

// NewMetrics registers analytics metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		QueryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kerbdash_analytics_query_duration_seconds",
			Help:    "Duration of connect plus query against the analytic database",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}), // outcome: "ok", "connect_error", "query_error"
	}
}

// ObserveQuery records one Points call.
func (m *Metrics) ObserveQuery(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ErrConnect):
		outcome = "connect_error"
	case err != nil:
		outcome = "query_error"
	}
	m.QueryLatency.WithLabelValues(outcome).Observe(d.Seconds())
}
