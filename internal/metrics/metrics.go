// Package metrics exposes Prometheus collectors for the HTTP layer, the
// analysis pipeline and the caches.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solarscan"

// Default buckets
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultTileDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultRunDurationBuckets  = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TilesTotal      *prometheus.CounterVec
	TileDuration    *prometheus.HistogramVec
	DetectionsTotal prometheus.Counter
	DedupTotal      *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// Options controls optional collectors.
type Options struct {
	EnableProcessMetrics bool
	EnableGoMetrics      bool
}

// New registers all metrics on a fresh registry.
func New(opts Options) *Metrics {
	reg := prometheus.NewRegistry()
	if opts.EnableProcessMetrics {
		reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}))
	}
	if opts.EnableGoMetrics {
		reg.MustRegister(prometheus.NewGoCollector())
	}

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request duration", Buckets: DefaultHTTPDurationBuckets,
		}, []string{"method", "path"}),
		TilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "tiles_total",
			Help: "Processed tiles by outcome",
		}, []string{"outcome"}),
		TileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "tile_duration_seconds",
			Help: "Fetch plus detection time per tile", Buckets: DefaultTileDurationBuckets,
		}, []string{"outcome"}),
		DetectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "detections_total",
			Help: "Raw detections returned by the detector",
		}),
		DedupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "dedup_decisions_total",
			Help: "Deduplicator decisions",
		}, []string{"decision"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "runs_total",
			Help: "Finished analyses",
		}, []string{"mode", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "run_duration_seconds",
			Help: "Analysis duration", Buckets: DefaultRunDurationBuckets,
		}, []string{"mode"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Cache hits",
		}, []string{"cache"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Cache misses",
		}, []string{"cache"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.TilesTotal, m.TileDuration, m.DetectionsTotal, m.DedupTotal,
		m.RunsTotal, m.RunDuration,
		m.CacheHitsTotal, m.CacheMissesTotal,
	)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

// RecordCacheAccess matches cache.Observer.
func (m *Metrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// TileProcessed implements pipeline.Observer.
func (m *Metrics) TileProcessed(outcome string, took time.Duration) {
	m.TilesTotal.WithLabelValues(outcome).Inc()
	m.TileDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// DetectionsFound implements pipeline.Observer.
func (m *Metrics) DetectionsFound(n int) {
	m.DetectionsTotal.Add(float64(n))
}

// DedupDecision implements pipeline.Observer.
func (m *Metrics) DedupDecision(outcome string) {
	m.DedupTotal.WithLabelValues(outcome).Inc()
}

// RunFinished implements pipeline.Observer.
func (m *Metrics) RunFinished(mode, outcome string, took time.Duration) {
	m.RunsTotal.WithLabelValues(mode, outcome).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(took.Seconds())
}
