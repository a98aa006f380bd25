// Package metrics exposes Prometheus counters for the simulation engine.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus metrics on a private registry so
// repeated construction in tests never double-registers. All record methods
// are safe on a nil Collector.
type Collector struct {
	requests       *prometheus.CounterVec
	simulatedFault *prometheus.CounterVec
	rateLimitHits  prometheus.Counter
	latency        prometheus.Histogram
	registry       *prometheus.Registry
}

// NewCollector creates and registers the engine metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "faultline_requests_total",
				Help: "Requests issued by the engine, labeled by outcome and status.",
			},
			[]string{"outcome", "status"},
		),
		simulatedFault: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "faultline_simulated_faults_total",
				Help: "Faults injected by the simulator, labeled by type.",
			},
			[]string{"type"},
		),
		rateLimitHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "faultline_rate_limit_hits_total",
				Help: "Responses classified as rate limited.",
			},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "faultline_request_duration_seconds",
				Help:    "Latency of requests issued by the engine.",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: registry,
	}

	registry.MustRegister(c.requests, c.simulatedFault, c.rateLimitHits, c.latency)
	return c
}

// RecordRequest counts one issued request.
func (c *Collector) RecordRequest(outcome string, status int, seconds float64) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(outcome, strconv.Itoa(status)).Inc()
	c.latency.Observe(seconds)
}

// RecordFault counts one injected fault.
func (c *Collector) RecordFault(faultType string) {
	if c == nil {
		return
	}
	c.simulatedFault.WithLabelValues(faultType).Inc()
}

// RecordRateLimitHit counts one throttled response.
func (c *Collector) RecordRateLimitHit() {
	if c == nil {
		return
	}
	c.rateLimitHits.Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
