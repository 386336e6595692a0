package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the chart module.
type Metrics struct {
	// Outcomes by result code ("ok" or a domain error code)
	Outcome *prometheus.CounterVec

	// End-to-end latency of successful chart requests
	HandleLatency prometheus.Histogram
}

// New creates a new Metrics instance with all chart module metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kerbdash_chart_requests_total",
			Help: "Chart requests by outcome",
		}, []string{"outcome"}),

		HandleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kerbdash_chart_handle_duration_seconds",
			Help:    "Duration of chart requests including credential scope and query",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncOutcome records a chart request outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.Outcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveHandleLatency records the duration of a successful request.
func (m *Metrics) ObserveHandleLatency(d time.Duration) {
	if m != nil {
		m.HandleLatency.Observe(d.Seconds())
	}
}
