// Package telemetry exposes the gateway's Prometheus metrics. Each Metrics
// value owns its own registry so servers and tests never share counters.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quotagate"

// Metrics records gateway outcomes and upstream latency. A nil *Metrics is
// valid and records nothing, so callers never need to check whether metrics
// are enabled.
type Metrics struct {
	registry *prometheus.Registry

	// outcomes counts every gateway operation by its final classification.
	//   - operation: inspect, issue, generate
	//   - outcome: ok or the gateway error kind (unauthenticated, ...)
	outcomes *prometheus.CounterVec

	// upstreamDuration measures outbound calls. Buckets span a fast key
	// verification up to a slow image generation.
	//   - upstream: keys, images
	//   - result: ok, error
	upstreamDuration *prometheus.HistogramVec
}

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "outcomes_total",
				Help:      "Gateway operations by final outcome.",
			},
			[]string{"operation", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Duration of calls to the key and image backends.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"upstream", "result"},
		),
	}

	m.registry.MustRegister(
		m.outcomes,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordOutcome counts one finished gateway operation.
func (m *Metrics) RecordOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
}

// ObserveUpstream records the duration of one upstream call.
func (m *Metrics) ObserveUpstream(upstream, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(upstream, result).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
