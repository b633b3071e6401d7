// Package stream plays back the active lightcurve to renderers, one frame per
// orbit step, over Server-Sent Events (GET /api/v1/stream/frames) or a
// WebSocket (GET /api/v1/ws/frames).
//
// Every connection first receives a metadata message describing the run
// (scene markers, axis range, step count), then one frame message per step at
// the requested interval, looping at the end of the orbit. Over SSE the
// message type is also the event name:
//
//	event: metadata
//	data: {"type":"metadata","run_id":"...","steps":400,"axis_range":[0.95,1.5],...}
//
//	event: frame
//	data: {"type":"frame","run_id":"...","step":0,"x":5,"y":0,"magnification":1}
//
// When the active configuration changes, playback restarts at step 0 of the
// new run after a fresh metadata message.
package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/star/lensgo/internal/httputil"
	"github.com/star/lensgo/internal/metrics"
	"github.com/star/lensgo/internal/simulation"
)

// Frame interval bounds for the interval_ms query parameter.
const (
	minIntervalMs = 10
	maxIntervalMs = 2000
)

// Source supplies the run to play back.
type Source interface {
	Active() *simulation.Lightcurve
}

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrentTotal int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive interval (default: 30s).
	FrameInterval      time.Duration // Default time between frames (default: 50ms).
	TrustProxy         bool          // Take the client IP from proxy headers.
}

// Handler manages playback connections.
type Handler struct {
	source   Source
	config   Config
	limiter  *streamLimiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a playback handler.
func NewHandler(source Source, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = 50 * time.Millisecond
	}
	return &Handler{
		source:  source,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrentTotal),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// parseInterval reads interval_ms, falling back to the configured default.
func (h *Handler) parseInterval(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("interval_ms")
	if v == "" {
		return h.config.FrameInterval, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minIntervalMs || n > maxIntervalMs {
		return 0, fmt.Errorf("invalid interval_ms parameter, must be %d-%d", minIntervalMs, maxIntervalMs)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// admit validates the request and reserves a limiter slot. On failure it has
// already written the error response. On success the caller must release ip.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (ip string, interval time.Duration, ok bool) {
	interval, err := h.parseInterval(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}

	if h.source.Active() == nil {
		metrics.IncStreamErrors("no_active_run")
		httputil.WriteError(w, http.StatusServiceUnavailable, "no active run")
		return "", 0, false
	}

	ip = httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"transport", transport,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return "", 0, false
	}
	return ip, interval, true
}

// track records a connection and returns the matching cleanup.
func (h *Handler) track(r *http.Request, ip, transport string, interval time.Duration) func() {
	metrics.IncStreamConnections(transport, "connect")
	metrics.IncStreamsActive()

	start := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"transport", transport,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", interval.Milliseconds(),
	)

	return func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections(transport, "disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"transport", transport,
			"duration_seconds", int(time.Since(start).Seconds()),
		)
	}
}
