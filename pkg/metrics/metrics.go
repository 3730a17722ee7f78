package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all client metrics
type Metrics struct {
	// HTTP pipeline metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SessionExpiries prometheus.Counter

	// Query cache metrics
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheJoins         prometheus.Counter
	CacheInvalidations prometheus.Counter
	CacheDropped       prometheus.Counter

	// Mutation metrics
	Mutations *prometheus.CounterVec
}

// New creates and registers all client metrics against reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of outbound API requests",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound API requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),
		SessionExpiries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_expiries_total",
			Help:      "Total number of 401/403 responses that cleared the session",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of fresh query cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of query cache misses or stale reads",
		}),
		CacheJoins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_joins_total",
			Help:      "Total number of callers that joined an in-flight fetch",
		}),
		CacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Total number of key-family invalidations",
		}),
		CacheDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_dropped_results_total",
			Help:      "Total number of fetch results dropped after cancellation",
		}),
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total number of optimistic mutations by outcome",
		}, []string{"outcome"}),
	}
}
