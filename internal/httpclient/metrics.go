package httpclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK        = "ok"
	outcomeHTTP      = "http_error"
	outcomeTransport = "transport_error"
	outcomeDecode    = "decode_error"
)

// Metrics holds the Prometheus collectors for upstream calls.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_dashboard_http_attempts_total",
				Help: "Upstream HTTP attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paper_dashboard_http_request_duration_seconds",
				Help:    "Duration of a single upstream HTTP attempt in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Duration)
	}
	return m
}

// observe is a no-op on a nil receiver so the client works without metrics.
func (m *Metrics) observe(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(method, outcome).Inc()
	m.Duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
