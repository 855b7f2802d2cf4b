package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	punches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kintai",
			Name:      "punches_total",
			Help:      "Punch executions by action and status.",
		},
		[]string{"action", "status"},
	)

	strategies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kintai",
			Name:      "write_strategy_total",
			Help:      "Write pipeline outcomes by strategy and result.",
		},
		[]string{"strategy", "result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kintai",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	probeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kintai",
			Name:      "state_probe_failures_total",
			Help:      "State probes that returned unknown.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(punches, strategies, httpRequests, probeFailures)
	})
}

// IncPunch counts one punch execution outcome.
func IncPunch(action, status string) {
	punches.WithLabelValues(action, status).Inc()
}

// IncStrategy counts one write-pipeline tier outcome.
func IncStrategy(strategy, result string) {
	strategies.WithLabelValues(strategy, result).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncProbeFailure counts an inconclusive state probe.
func IncProbeFailure() {
	probeFailures.Inc()
}
