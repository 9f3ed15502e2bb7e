// Package observability wires structured logging, Prometheus metrics, and
// zone-level labelling for the resolver core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the resolver core exports. Callers
// register it once against a prometheus.Registerer (typically the default
// one, served by cmd/recursorsd's promhttp.Handler).
type Metrics struct {
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	ServerSelections *prometheus.CounterVec
	ServerFailures   *prometheus.CounterVec

	ResolveDuration *prometheus.HistogramVec
	ResolveDepth    prometheus.Histogram

	ActiveQueries prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recursor",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that found a non-expired entry, by kind (positive, negative, delegation).",
		}, []string{"kind"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recursor",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found no entry, by kind.",
		}, []string{"kind"}),

		ServerSelections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recursor",
			Subsystem: "tracker",
			Name:      "selections_total",
			Help:      "Nameservers returned by Select, by status at selection time.",
		}, []string{"status"}),

		ServerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recursor",
			Subsystem: "tracker",
			Name:      "failures_total",
			Help:      "Exchange failures recorded against a nameserver, by kind (timeout, iofail, servfail).",
		}, []string{"kind"}),

		ResolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recursor",
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Wall-clock time of one top-level resolve call, by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"outcome"}),

		ResolveDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recursor",
			Subsystem: "resolver",
			Name:      "resolve_depth",
			Help:      "Delegation/CNAME/glue steps consumed by one resolve call.",
			Buckets:   prometheus.LinearBuckets(1, 1, 16),
		}),

		ActiveQueries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "recursor",
			Subsystem: "listener",
			Name:      "active_queries",
			Help:      "Client queries currently held by the worker pool.",
		}),
	}
}
