// Package metrics wires the transport's MetricsSink to Prometheus, the way
// the rest of the corpus exposes client_golang counters and gauges under
// /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector implements transport.MetricsSink against a Prometheus registry.
type Collector struct {
	requestsTotal *prometheus.CounterVec
	retriesTotal  prometheus.Counter
	deadConns     prometheus.Gauge
}

// New registers the estransport collectors against reg and returns a
// Collector ready to pass to transport.WithMetricsCollector.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estransport_requests_total",
			Help: "Requests performed by the transport, labeled by method and outcome.",
		}, []string{"method", "outcome"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estransport_retries_total",
			Help: "Retries issued by the transport's retry loop.",
		}),
		deadConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "estransport_pool_dead_connections",
			Help: "Connections currently quarantined in the dead pool.",
		}),
	}
	reg.MustRegister(c.requestsTotal, c.retriesTotal, c.deadConns)
	return c
}

// ObserveRequest implements transport.MetricsSink.
func (c *Collector) ObserveRequest(method, outcome string) {
	c.requestsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveRetry implements transport.MetricsSink.
func (c *Collector) ObserveRetry() {
	c.retriesTotal.Inc()
}

// SetDeadConnections implements transport.MetricsSink.
func (c *Collector) SetDeadConnections(n int) {
	c.deadConns.Set(float64(n))
}
