package api

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/lensgo/internal/auth"
	"github.com/star/lensgo/internal/cache"
	"github.com/star/lensgo/internal/health"
	"github.com/star/lensgo/internal/httputil"
	"github.com/star/lensgo/internal/metrics"
	"github.com/star/lensgo/internal/scenario"
	"github.com/star/lensgo/internal/simulation"
	"github.com/star/lensgo/internal/stream"
)

// Deps are the services the HTTP handlers read from.
type Deps struct {
	Runner  *simulation.Runner
	Cache   *cache.RunCache
	Store   *scenario.Store
	Archive *scenario.Archive // optional
	Stream  *stream.Handler
	Version string
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with its middleware chain:
// metrics -> logging -> auth -> mux.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", indexHandler(deps.Version))
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(readiness(deps.Cache)))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/lightcurve", lightcurveHandler(logger, deps.Cache, deps.Store))
	mux.HandleFunc("GET /api/v1/events", eventsHandler(logger, deps.Cache, deps.Store))
	mux.HandleFunc("GET /api/v1/sweep", sweepHandler(logger, deps.Runner, deps.Store))
	mux.HandleFunc("GET /api/v1/presets", presetsHandler(deps.Store))
	mux.HandleFunc("GET /api/v1/presets/{name}", presetHandler(deps.Store))
	mux.HandleFunc("GET /api/v1/config", getConfigHandler(deps.Store, deps.Cache))
	mux.HandleFunc("PUT /api/v1/config", putConfigHandler(logger, deps.Store, deps.Cache))
	mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(deps.Cache))
	mux.HandleFunc("GET /api/v1/archive/latest", archiveLatestHandler(deps.Archive))

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleSSE)
		mux.HandleFunc("GET /api/v1/ws/frames", deps.Stream.HandleWebSocket)
	}

	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func readiness(c *cache.RunCache) health.ReadyFunc {
	return func() (bool, string) {
		if c.Active() == nil {
			return false, "no active run"
		}
		return true, ""
	}
}

func indexHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"service": "lensgo",
			"version": version,
		})
	}
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("api: %T does not support hijacking", sr.ResponseWriter)
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
