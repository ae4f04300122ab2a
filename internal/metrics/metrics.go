// Package metrics holds the Prometheus instruments shared by the REST
// client and the request coordinators.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "complaintdesk"

// Metrics holds Prometheus metrics for the client.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec
	FetchOutcomes    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the client metrics on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of REST requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "REST request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of REST requests currently awaiting a response",
			},
			[]string{"route"},
		),
		FetchOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "outcomes_total",
				Help:      "Completed logical fetches by outcome (applied, stale, aborted, failed)",
			},
			[]string{"fetch", "outcome"},
		),
		gatherer: reg,
	}
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch counts one completed fetch. It is a no-op on a nil
// receiver so components can run without metrics.
func (m *Metrics) ObserveFetch(fetch, outcome string) {
	if m == nil {
		return
	}
	m.FetchOutcomes.WithLabelValues(fetch, outcome).Inc()
}
