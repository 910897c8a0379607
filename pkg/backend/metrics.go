package backend

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the backend's collectors on a private registry, one per
// Context, so independent backends (and tests) never collide on the
// process-global default registry.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
	requestFailures   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	inflight          *prometheus.GaugeVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triton",
				Subsystem: "backend",
				Name:      "executions_total",
				Help:      "Total execute calls per model",
			},
			[]string{"model", "outcome"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triton",
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Total requests resolved, by outcome",
			},
			[]string{"model", "outcome"},
		),
		requestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triton",
				Subsystem: "backend",
				Name:      "request_failures_total",
				Help:      "Requests resolved with an error, by error kind",
			},
			[]string{"model", "kind"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "triton",
				Subsystem: "backend",
				Name:      "execution_duration_seconds",
				Help:      "Duration of execute calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "triton",
				Subsystem: "backend",
				Name:      "inflight_executions",
				Help:      "Execute calls currently running",
			},
			[]string{"model"},
		),
	}
	m.registry.MustRegister(m.executionsTotal, m.requestsTotal, m.requestFailures, m.executionDuration, m.inflight)
	return m
}

// Registry exposes the backend's collectors, e.g. for the host to scrape
// or for tests to gather.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) requestResolved(model string, err error) {
	if err == nil {
		m.requestsTotal.WithLabelValues(model, "success").Inc()
		return
	}
	m.requestsTotal.WithLabelValues(model, "error").Inc()
	m.requestFailures.WithLabelValues(model, KindOf(err).String()).Inc()
}
