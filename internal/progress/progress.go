// Package progress exposes run counters for long rate-limited gathering
// runs, served over an optional HTTP endpoint.
package progress

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the run counters. A nil *Metrics is a no-op sink so
// collectors never need to guard their observations.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests    *prometheus.CounterVec
	rateLimitWaits prometheus.Counter
	pagesFetched   *prometheus.CounterVec
	itemsCollected *prometheus.CounterVec
	reposProcessed prometheus.Counter
	reposSkipped   prometheus.Counter
}

// NewMetrics creates and registers the run counters on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_api_requests_total",
			Help: "GitHub API requests by endpoint and outcome.",
		}, []string{"endpoint", "status"}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gather_rate_limit_waits_total",
			Help: "Waits taken on rate-limited responses.",
		}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_pages_fetched_total",
			Help: "List pages fetched by category.",
		}, []string{"category"}),
		itemsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_items_collected_total",
			Help: "Activity records collected by category.",
		}, []string{"category"}),
		reposProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gather_repositories_processed_total",
			Help: "Repositories fully processed.",
		}),
		reposSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gather_repositories_skipped_total",
			Help: "Repositories skipped as unreachable.",
		}),
	}

	registry.MustRegister(
		m.apiRequests,
		m.rateLimitWaits,
		m.pagesFetched,
		m.itemsCollected,
		m.reposProcessed,
		m.reposSkipped,
	)
	return m
}

// Handler serves the registered counters in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one API request outcome.
func (m *Metrics) ObserveRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, status).Inc()
}

// ObserveRateLimitWaits records rate-limit waits taken during a call.
func (m *Metrics) ObserveRateLimitWaits(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rateLimitWaits.Add(float64(count))
}

// ObservePage records one fetched list page.
func (m *Metrics) ObservePage(category string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(category).Inc()
}

// ObserveItems records collected activity records.
func (m *Metrics) ObserveItems(category string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsCollected.WithLabelValues(category).Add(float64(count))
}

// ObserveRepoProcessed records one fully processed repository.
func (m *Metrics) ObserveRepoProcessed() {
	if m == nil {
		return
	}
	m.reposProcessed.Inc()
}

// ObserveRepoSkipped records one unreachable repository.
func (m *Metrics) ObserveRepoSkipped() {
	if m == nil {
		return
	}
	m.reposSkipped.Inc()
}
