// Package metrics exposes the service's Prometheus collectors and the helpers
// the rest of the code uses to update them.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensgo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensgo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensgo_runs_total",
			Help: "Lightcurve runs computed, by result (ok, invalid, error).",
		},
		[]string{"result"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensgo_run_duration_seconds",
			Help:    "Time to compute one lightcurve run.",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		},
	)

	runSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_run_samples_total",
			Help: "Magnification samples computed across all runs.",
		},
	)

	sweepWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensgo_sweep_workers",
			Help: "Configured size of the sweep worker pool.",
		},
	)

	activePeakMagnification = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensgo_active_peak_magnification",
			Help: "Peak magnification of the active configuration's run.",
		},
	)

	activeConfigAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensgo_active_config_age_seconds",
			Help: "Seconds since the active configuration was last replaced.",
		},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_cache_hits_total",
			Help: "Run cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_cache_misses_total",
			Help: "Run cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_cache_evictions_total",
			Help: "Run cache entries evicted.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensgo_cache_entries",
			Help: "Runs currently held in the cache.",
		},
	)

	cacheRecomputeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_cache_recompute_errors_total",
			Help: "Failed recomputations of the active run.",
		},
	)

	cacheRecomputeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensgo_cache_recompute_duration_seconds",
			Help:    "Duration of active-run recomputation after a configuration change.",
			Buckets: prometheus.DefBuckets,
		},
	)

	cacheCutoverActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensgo_cache_cutover_active",
			Help: "1 while the active run is being recomputed after a configuration change.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensgo_stream_connections_total",
			Help: "Stream connection events, by transport and event (connect, disconnect).",
		},
		[]string{"transport", "event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lensgo_streams_active",
			Help: "Currently open frame streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_stream_messages_total",
			Help: "Messages written to frame streams.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lensgo_stream_bytes_total",
			Help: "Bytes written to frame streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensgo_stream_errors_total",
			Help: "Frame stream errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		runsTotal,
		runDurationSeconds,
		runSamplesTotal,
		sweepWorkers,
		activePeakMagnification,
		activeConfigAgeSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheRecomputeErrorsTotal,
		cacheRecomputeDurationSeconds,
		cacheCutoverActive,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// knownRoutes are the exact paths served by the API. Anything else is
// reported as "other" to keep label cardinality bounded.
var knownRoutes = map[string]bool{
	"/":                      true,
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/lightcurve":     true,
	"/api/v1/events":         true,
	"/api/v1/sweep":          true,
	"/api/v1/presets":        true,
	"/api/v1/config":         true,
	"/api/v1/cache/stats":    true,
	"/api/v1/stream/frames":  true,
	"/api/v1/ws/frames":      true,
	"/api/v1/archive/latest": true,
}

// normalizeRoute maps a request path to a bounded metrics label.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/presets/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/presets/{name}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE handlers keep working behind
// the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the wrapped writer for WebSocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", rw.ResponseWriter)
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

// RecordRun records one completed run attempt. result is "ok", "invalid" or "error".
func RecordRun(duration time.Duration, samples int, result string) {
	runsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		runDurationSeconds.Observe(duration.Seconds())
		runSamplesTotal.Add(float64(samples))
	}
}

// SetSweepWorkers publishes the sweep worker pool size.
func SetSweepWorkers(n int) { sweepWorkers.Set(float64(n)) }

// SetActivePeakMagnification publishes the active run's peak magnification.
func SetActivePeakMagnification(v float64) { activePeakMagnification.Set(v) }

// SetActiveConfigAge publishes the age of the active configuration.
func SetActiveConfigAge(seconds float64) { activeConfigAgeSeconds.Set(seconds) }

func IncCacheHits()   { cacheHitsTotal.Inc() }
func IncCacheMisses() { cacheMissesTotal.Inc() }

// AddCacheEvictions adds n evicted entries.
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }

// SetCacheEntries publishes the current cache size.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

func IncCacheRecomputeErrors() { cacheRecomputeErrorsTotal.Inc() }

// ObserveCacheRecomputeDuration records how long an active-run recompute took.
func ObserveCacheRecomputeDuration(d time.Duration) {
	cacheRecomputeDurationSeconds.Observe(d.Seconds())
}

// SetCacheCutoverActive flags whether a cutover is in progress.
func SetCacheCutoverActive(active bool) {
	if active {
		cacheCutoverActive.Set(1)
		return
	}
	cacheCutoverActive.Set(0)
}

// IncStreamConnections counts a connect or disconnect for a transport (sse, ws).
func IncStreamConnections(transport, event string) {
	streamConnectionsTotal.WithLabelValues(transport, event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes adds n bytes written to a stream.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }
