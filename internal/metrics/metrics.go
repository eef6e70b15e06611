// Package metrics exposes the Prometheus counters the client, cache and
// pipeline update as a run progresses: request counts and latency by
// model and outcome, error counts by code, cache hits and misses, and
// per-phase duration. It is
// ambient instrumentation, not part of the pipeline's control flow —
// every method is safe to call on a nil *Collector so wiring it up is
// optional at the call sites.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the counters and histograms for one llmap process.
type Collector struct {
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmErrorsTotal     *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	phaseDuration *prometheus.HistogramVec
}

// NewCollector registers llmap's counters under namespace with the
// default Prometheus registry.
func NewCollector(namespace string) *Collector {
	return &Collector{
		llmRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total LLM requests issued, by model and outcome.",
		}, []string{"model", "outcome"}),

		llmRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request latency in seconds, by model.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),

		llmErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "LLM request failures, by error code.",
		}, []string{"code"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups that returned a stored answer.",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that found nothing stored.",
		}),

		phaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of each pipeline phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
}

func (c *Collector) ObserveRequest(model, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(model, outcome).Inc()
	c.llmRequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (c *Collector) ObserveError(code string) {
	if c == nil {
		return
	}
	c.llmErrorsTotal.WithLabelValues(code).Inc()
}

func (c *Collector) ObserveCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) ObserveCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

func (c *Collector) ObservePhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}
