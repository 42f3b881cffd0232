package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshmap"

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	fetchesTotal        *prometheus.CounterVec
	fetchDuration       prometheus.Histogram
	gatewayNodes        *prometheus.GaugeVec
	geocodeLookups      *prometheus.CounterVec
}

// New creates a fresh registry with HTTP, feed and resolver metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by meshmap",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by meshmap",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	fetchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "topology_fetches_total",
		Help:      "Topology fetches by outcome",
	}, []string{"outcome"})

	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "topology_fetch_duration_seconds",
		Help:      "Duration of topology fetches including enrichment",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	gatewayNodes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gateway_nodes",
		Help:      "Nodes of the last resolved snapshot by gateway assignment state",
	}, []string{"state"})

	geocodeLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocode_lookups_total",
		Help:      "Geocoder lookups by result",
	}, []string{"result"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		fetchesTotal,
		fetchDuration,
		gatewayNodes,
		geocodeLookups,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		fetchesTotal:        fetchesTotal,
		fetchDuration:       fetchDuration,
		gatewayNodes:        gatewayNodes,
		geocodeLookups:      geocodeLookups,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveFetch records one topology fetch.
func (m *Metrics) ObserveFetch(duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.fetchesTotal.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(duration.Seconds())
}

// SetGatewayAssignment publishes the assignment counts of the last
// resolution.
func (m *Metrics) SetGatewayAssignment(gateways, served, unassigned int) {
	if m == nil {
		return
	}
	m.gatewayNodes.WithLabelValues("gateway").Set(float64(gateways))
	m.gatewayNodes.WithLabelValues("served").Set(float64(served))
	m.gatewayNodes.WithLabelValues("unassigned").Set(float64(unassigned))
}

// IncGeocode counts a geocoder lookup. result is "hit", "miss", "cached" or
// "error".
func (m *Metrics) IncGeocode(result string) {
	if m == nil {
		return
	}
	m.geocodeLookups.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
