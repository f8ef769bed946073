package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pixload/pixload/pkg/cache/memory"
	"github.com/pixload/pixload/pkg/engine"
)

// loaderMetrics is the Prometheus implementation of engine.Metrics.
type loaderMetrics struct {
	loadDuration  *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	fetchedBytes  prometheus.Counter
	inFlight      prometheus.Gauge
}

// NewLoaderMetrics creates the engine collectors.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// engine skips collection entirely for a nil Metrics.
func NewLoaderMetrics() engine.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &loaderMetrics{
		loadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixload_load_duration_seconds",
				Help:    "Time from submit to display, by the tier that served the image",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tier"}, // "memory", "disc", "network"
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixload_load_failures_total",
				Help: "Terminal load failures by classified kind",
			},
			[]string{"kind"},
		),
		cancellations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixload_load_cancellations_total",
				Help: "Loads ended without delivery, by cause",
			},
			[]string{"cause"}, // "reused", "collected"
		),
		fetchedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "pixload_fetched_bytes_total",
				Help: "Bytes copied from remote sources",
			},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "pixload_loads_in_flight",
				Help: "Tasks between submit and terminal outcome",
			},
		),
	}
}

func (m *loaderMetrics) ObserveLoad(tier engine.SourceTier, d time.Duration) {
	m.loadDuration.WithLabelValues(tier.String()).Observe(d.Seconds())
}

func (m *loaderMetrics) ObserveFailure(kind engine.FailKind) {
	m.failures.WithLabelValues(kind.String()).Inc()
}

func (m *loaderMetrics) ObserveCancellation(cause string) {
	m.cancellations.WithLabelValues(cause).Inc()
}

func (m *loaderMetrics) ObserveFetchedBytes(n int64) {
	m.fetchedBytes.Add(float64(n))
}

func (m *loaderMetrics) SetInFlight(n int64) {
	m.inFlight.Set(float64(n))
}

// memoryCacheMetrics is the Prometheus implementation of memory.Metrics.
type memoryCacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.Gauge
	bytes     prometheus.Gauge
}

// NewMemoryCacheMetrics creates the memory cache collectors.
//
// Returns nil if metrics are not enabled.
func NewMemoryCacheMetrics() memory.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &memoryCacheMetrics{
		hits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "pixload_memory_cache_hits_total",
				Help: "Memory cache lookups that found an entry",
			},
		),
		misses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "pixload_memory_cache_misses_total",
				Help: "Memory cache lookups that found nothing",
			},
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "pixload_memory_cache_evictions_total",
				Help: "Entries dropped to stay within the byte budget",
			},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "pixload_memory_cache_entries",
				Help: "Entries currently cached",
			},
		),
		bytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "pixload_memory_cache_bytes",
				Help: "Estimated decoded bytes currently cached",
			},
		),
	}
}

func (m *memoryCacheMetrics) ObserveHit()      { m.hits.Inc() }
func (m *memoryCacheMetrics) ObserveMiss()     { m.misses.Inc() }
func (m *memoryCacheMetrics) ObserveEviction() { m.evictions.Inc() }

func (m *memoryCacheMetrics) SetUsage(entries int, bytes int64) {
	m.entries.Set(float64(entries))
	m.bytes.Set(float64(bytes))
}
