package observability

import (
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the dashboard BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	upstreamDuration *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	fetches          *prometheus.CounterVec
	staleCommits     *prometheus.CounterVec
	invalidations    *prometheus.CounterVec
	mutations        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankdash_upstream_request_duration_seconds",
				Help:    "Duration of bank API calls by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_upstream_errors_total",
				Help: "Failed bank API calls by kind (network, http).",
			},
			[]string{"kind"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_cache_hits_total",
				Help: "Observations served from a fresh entry.",
			},
			[]string{"resource"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_cache_misses_total",
				Help: "Observations that found no usable fresh entry.",
			},
			[]string{"resource"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_cache_fetches_total",
				Help: "Fetches started against the bank API.",
			},
			[]string{"resource"},
		),
		staleCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_cache_suppressed_commits_total",
				Help: "Responses of superseded fetches that were discarded.",
			},
			[]string{"resource"},
		),
		invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_cache_invalidations_total",
				Help: "Entries marked stale by mutations.",
			},
			[]string{"resource"},
		),
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankdash_mutations_total",
				Help: "Mutations by operation and result.",
			},
			[]string{"operation", "result"},
		),
	}
}

// RecordUpstreamDuration records the duration of a bank API call.
func (m *Metrics) RecordUpstreamDuration(method string, d time.Duration) {
	m.upstreamDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncrExternalError increments the upstream error counter.
func (m *Metrics) IncrExternalError(kind string) {
	m.externalErrors.WithLabelValues(kind).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(resource string) {
	m.cacheHits.WithLabelValues(resource).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(resource string) {
	m.cacheMisses.WithLabelValues(resource).Inc()
}

// IncrFetch counts a fetch actually sent upstream.
func (m *Metrics) IncrFetch(resource string) {
	m.fetches.WithLabelValues(resource).Inc()
}

// IncrSuppressedCommit counts a discarded response of a superseded fetch.
func (m *Metrics) IncrSuppressedCommit(resource string) {
	m.staleCommits.WithLabelValues(resource).Inc()
}

// AddInvalidations counts entries marked stale.
func (m *Metrics) AddInvalidations(resource string, n int) {
	m.invalidations.WithLabelValues(resource).Add(float64(n))
}

// IncrMutation counts a mutation with its result ("success" or "error").
func (m *Metrics) IncrMutation(operation, result string) {
	m.mutations.WithLabelValues(operation, result).Inc()
}

// FetchCount returns the number of fetches started for a resource.
func (m *Metrics) FetchCount(resource string) float64 {
	return getCounterValue(m.fetches, resource)
}

// GetCacheSnapshot returns cache counters summed over the given resources,
// for the GET /v1/metrics/cache endpoint.
func (m *Metrics) GetCacheSnapshot(entries int, resources ...string) *domain.CacheMetrics {
	snap := &domain.CacheMetrics{Entries: entries}
	for _, r := range resources {
		snap.Hits += getCounterValue(m.cacheHits, r)
		snap.Misses += getCounterValue(m.cacheMisses, r)
		snap.Fetches += getCounterValue(m.fetches, r)
		snap.SuppressedCommits += getCounterValue(m.staleCommits, r)
		snap.Invalidations += getCounterValue(m.invalidations, r)
	}
	if total := snap.Hits + snap.Misses; total > 0 {
		snap.HitRate = snap.Hits / total
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
