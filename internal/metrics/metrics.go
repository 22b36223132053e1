// Package metrics exposes application metrics that are safe to scrape via
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the private registry and the instruments for the bridge,
// matchers, and clipper.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	bridgeMessages      *prometheus.CounterVec
	staleDiscards       prometheus.Counter
	commits             *prometheus.CounterVec
	clipSegments        prometheus.Histogram
	matcherDuration     *prometheus.HistogramVec
}

// New creates a fresh Metrics registry with all instruments registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracks",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by tracks-core",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracks",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by tracks-core",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	bridgeMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracks",
		Name:      "bridge_messages_total",
		Help:      "Bridge messages by kind, direction and outcome",
	}, []string{"kind", "direction", "outcome"})

	staleDiscards := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tracks",
		Name:      "bridge_stale_discards_total",
		Help:      "Selection messages discarded inside the create-confirmation window",
	})

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracks",
		Name:      "route_commits_total",
		Help:      "Route commits by outcome",
	}, []string{"outcome"})

	clipSegments := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracks",
		Name:      "clip_segments",
		Help:      "Number of in-boundary segments produced per commit clip",
		Buckets:   []float64{0, 1, 2, 3, 5, 10},
	})

	matcherDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracks",
		Name:      "matcher_query_duration_seconds",
		Help:      "Duration of reference matcher queries",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"matcher"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		bridgeMessages,
		staleDiscards,
		commits,
		clipSegments,
		matcherDuration,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		bridgeMessages:      bridgeMessages,
		staleDiscards:       staleDiscards,
		commits:             commits,
		clipSegments:        clipSegments,
		matcherDuration:     matcherDuration,
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

// ObserveBridgeMessage counts one bridge message.
func (m *Metrics) ObserveBridgeMessage(kind, direction, outcome string) {
	if m == nil {
		return
	}
	m.bridgeMessages.With(prometheus.Labels{
		"kind":      kind,
		"direction": direction,
		"outcome":   outcome,
	}).Inc()
}

// IncStaleDiscard counts a selection discarded as stale.
func (m *Metrics) IncStaleDiscard() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
}

// ObserveCommit counts a commit attempt by outcome.
func (m *Metrics) ObserveCommit(outcome string) {
	if m == nil {
		return
	}
	m.commits.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// ObserveClipSegments records the part count of one commit clip.
func (m *Metrics) ObserveClipSegments(n int) {
	if m == nil {
		return
	}
	m.clipSegments.Observe(float64(n))
}

// ObserveMatcherDuration records a matcher query duration.
func (m *Metrics) ObserveMatcherDuration(matcher string, duration time.Duration) {
	if m == nil {
		return
	}
	m.matcherDuration.With(prometheus.Labels{"matcher": matcher}).Observe(duration.Seconds())
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
