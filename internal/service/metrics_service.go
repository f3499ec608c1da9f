package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/room-allocation-api/pkg/jobs"
)

const metricsNamespace = "room_allocation"

type httpCollectors struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

type cacheCollectors struct {
	latency  prometheus.Histogram
	write    prometheus.Histogram
	hitRatio prometheus.Gauge
	hits     prometheus.Counter
	misses   prometheus.Counter
}

type runCollectors struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	active   prometheus.Gauge
}

// MetricsService owns the Prometheus registry of the process and keeps running totals for the
// stats endpoint.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	http    httpCollectors
	cache   cacheCollectors
	dbQuery *prometheus.HistogramVec
	runs    runCollectors

	cacheHitCount  atomic.Uint64
	cacheMissCount atomic.Uint64
	requestCount   atomic.Uint64
	requestNanos   atomic.Uint64
	dbQueryCount   atomic.Uint64
	dbQueryNanos   atomic.Uint64
}

// NewMetricsService registers every collector under the room_allocation namespace.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.http = httpCollectors{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "path", "status"}),
	}

	m.cache = cacheCollectors{
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "read_seconds",
			Help:    "Latency of cache reads",
			Buckets: prometheus.DefBuckets,
		}),
		write: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "write_seconds",
			Help:    "Latency of cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		hitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "hit_ratio",
			Help: "Cache hits over lookups since start",
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "hits_total",
			Help: "Cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "misses_total",
			Help: "Cache misses",
		}),
	}

	m.dbQuery = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "db", Name: "query_duration_seconds",
		Help:    "Duration of conflict index queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	m.runs = runCollectors{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "allocation_runs_total",
			Help: "Allocation runs by terminal status",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "allocation_run_duration_seconds",
			Help:    "Wall time of allocation runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "allocation_demand_outcomes_total",
			Help: "Demands resolved by allocation runs, by status",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "allocation_runs_active",
			Help: "Allocation runs currently executing",
		}),
	}

	m.registry.MustRegister(
		m.http.duration, m.http.total,
		m.cache.latency, m.cache.write, m.cache.hitRatio, m.cache.hits, m.cache.misses,
		m.dbQuery,
		m.runs.total, m.runs.duration, m.runs.outcomes, m.runs.active,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// RegisterQueue exports depth and in-flight gauges for a job queue.
func (m *MetricsService) RegisterQueue(queue interface{ Stats() jobs.Stats }) error {
	if m == nil || queue == nil {
		return nil
	}
	name := queue.Stats().Name
	labels := prometheus.Labels{"queue": name}
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "queue", Name: "depth",
		Help: "Jobs waiting in the queue buffer", ConstLabels: labels,
	}, func() float64 { return float64(queue.Stats().Depth) })
	inFlight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "queue", Name: "in_flight",
		Help: "Jobs currently being handled", ConstLabels: labels,
	}, func() float64 { return float64(queue.Stats().InFlight) })
	for _, c := range []prometheus.Collector{depth, inFlight} {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.http.duration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.http.total.WithLabelValues(method, path, code).Inc()
	m.requestCount.Add(1)
	m.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache read and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cache.latency.Observe(duration.Seconds())
	if hit {
		m.cache.hits.Inc()
		m.cacheHitCount.Add(1)
	} else {
		m.cache.misses.Inc()
		m.cacheMissCount.Add(1)
	}
	if ratio, ok := ratio(m.cacheHitCount.Load(), m.cacheMissCount.Load()); ok {
		m.cache.hitRatio.Set(ratio)
	}
}

// ObserveCacheWrite records a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cache.write.Observe(duration.Seconds())
}

// ObserveDBQuery records the timing of a labelled query.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQuery.WithLabelValues(label).Observe(duration.Seconds())
	m.dbQueryCount.Add(1)
	m.dbQueryNanos.Add(uint64(duration.Nanoseconds()))
}

// ObserveAllocationRun records the terminal status and wall time of a run.
func (m *MetricsService) ObserveAllocationRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.total.WithLabelValues(status).Inc()
	m.runs.duration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDemandOutcomes adds count demands resolved with status.
func (m *MetricsService) RecordDemandOutcomes(status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.runs.outcomes.WithLabelValues(status).Add(float64(count))
}

// TrackActiveRun increments the active run gauge and returns its decrement.
func (m *MetricsService) TrackActiveRun() func() {
	if m == nil {
		return func() {}
	}
	m.runs.active.Inc()
	return m.runs.active.Dec
}

// Stats summarises request, cache and database counters since start.
type Stats struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// Snapshot returns aggregated counters for the stats endpoint.
func (m *MetricsService) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	stats := Stats{
		RequestsTotal: m.requestCount.Load(),
		CacheHits:     m.cacheHitCount.Load(),
		CacheMisses:   m.cacheMissCount.Load(),
		DBQueryCount:  m.dbQueryCount.Load(),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
	stats.CacheHitRatio, _ = ratio(stats.CacheHits, stats.CacheMisses)
	stats.AverageRequestDurationMs = averageMillis(m.requestNanos.Load(), stats.RequestsTotal)
	stats.AverageDBQueryDurationMs = averageMillis(m.dbQueryNanos.Load(), stats.DBQueryCount)
	return stats
}

func ratio(hits, misses uint64) (float64, bool) {
	total := hits + misses
	if total == 0 {
		return 0, false
	}
	return float64(hits) / float64(total), true
}

func averageMillis(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
