package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the gateway.
//
// Metrics collected:
//   - <ns>_requests_total: counter of requests by method and status
//     ("transport_error" and "token_error" stand in for requests that
//     never produced a response)
//   - <ns>_request_duration_seconds: histogram of request duration by method
//   - <ns>_csrf_fetches_total: counter of CSRF token fetches by outcome
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokenFetches    *prometheus.CounterVec
}

// MetricsConfig configures gateway metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace. Default: "ottoclient".
	Namespace string

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to register with.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// DefaultMetricsConfig returns a MetricsConfig with defaults applied.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "ottoclient",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// NewMetrics registers and returns the gateway metrics.
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "ottoclient"
	}
	if config.Buckets == nil {
		config.Buckets = prometheus.DefBuckets
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(config.Registry)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "requests_total",
			Help:      "Total number of gateway requests by method and status",
		}, []string{"method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Gateway request duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"method"}),

		tokenFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "csrf_fetches_total",
			Help:      "Total number of CSRF token fetches by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeRequest(method, status string, seconds float64) {
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) observeTokenFetch(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.tokenFetches.WithLabelValues(outcome).Inc()
}
