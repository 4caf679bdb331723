// Prometheus instrumentation for the API layer.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the backend.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	Classifications *prometheus.CounterVec
	BacktestRuns    prometheus.Counter
	BacktestSeconds prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regime_backend_request_duration_seconds",
				Help:    "Duration of API requests by endpoint and status",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"endpoint", "status"},
		),

		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_backend_classifications_total",
				Help: "Total regime classifications by resulting regime",
			},
			[]string{"regime"},
		),

		BacktestRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "regime_backend_backtests_total",
				Help: "Total backtest runs",
			},
		),

		BacktestSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regime_backend_backtest_duration_seconds",
				Help:    "Wall-clock duration of backtest runs",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
		),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.Classifications,
		m.BacktestRuns,
		m.BacktestSeconds,
	)

	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
