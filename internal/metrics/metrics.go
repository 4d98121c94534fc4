package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lfx_gateway",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lfx_gateway",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lfx_gateway",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lfx_gateway",
			Subsystem: "warehouse",
			Name:      "query_duration_seconds",
			Help:      "Duration of warehouse query executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"status"},
	)

	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lfx_gateway",
			Subsystem: "warehouse",
			Name:      "query_result_rows",
			Help:      "Row counts of warehouse query results.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	poolOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lfx_gateway",
			Subsystem: "warehouse",
			Name:      "pool_connections",
			Help:      "Warehouse connection pool occupancy by state.",
		},
		[]string{"state"},
	)

	dedupRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lfx_gateway",
			Subsystem: "dedup",
			Name:      "requests_total",
			Help:      "Query deduplication outcomes (hit = coalesced onto an in-flight query).",
		},
		[]string{"outcome"},
	)

	dedupInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lfx_gateway",
			Subsystem: "dedup",
			Name:      "inflight_fingerprints",
			Help:      "Number of query fingerprints currently executing.",
		},
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lfx_gateway",
			Subsystem: "resultcache",
			Name:      "requests_total",
			Help:      "Analytics result cache outcomes.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		queryDuration,
		queryRows,
		poolOccupancy,
		dedupRequests,
		dedupInFlight,
		cacheRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementInFlight marks an HTTP request as started.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight marks an HTTP request as finished.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordQuery records a warehouse query execution.
func RecordQuery(status string, duration time.Duration, rows int) {
	queryDuration.WithLabelValues(status).Observe(duration.Seconds())
	if rows >= 0 {
		queryRows.Observe(float64(rows))
	}
}

// RecordPoolOccupancy reports connection pool state gauges.
func RecordPoolOccupancy(open, inUse, idle int, waiting int64) {
	poolOccupancy.WithLabelValues("open").Set(float64(open))
	poolOccupancy.WithLabelValues("in_use").Set(float64(inUse))
	poolOccupancy.WithLabelValues("idle").Set(float64(idle))
	poolOccupancy.WithLabelValues("waiting").Set(float64(waiting))
}

// RecordDedupHit counts a caller coalesced onto an in-flight query.
func RecordDedupHit() { dedupRequests.WithLabelValues("hit").Inc() }

// RecordDedupMiss counts a query execution issued to the warehouse.
func RecordDedupMiss() { dedupRequests.WithLabelValues("miss").Inc() }

// SetDedupInFlight reports the current number of executing fingerprints.
func SetDedupInFlight(n int) { dedupInFlight.Set(float64(n)) }

// RecordCacheHit counts an analytics result served from the cache.
func RecordCacheHit() { cacheRequests.WithLabelValues("hit").Inc() }

// RecordCacheMiss counts an analytics cache miss.
func RecordCacheMiss() { cacheRequests.WithLabelValues("miss").Inc() }
