package stream

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/lensgo/internal/httputil"
	"github.com/star/lensgo/internal/metrics"
)

// HandleSSE serves frame playback as Server-Sent Events.
// GET /api/v1/stream/frames?interval_ms=50
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	ip, interval, ok := h.admit(w, r, "sse")
	if !ok {
		return
	}
	defer h.track(r, ip, "sse", interval)()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived: clear the server's WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &sseClient{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered retry (3-7s) so reconnects spread out after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	p := newPlayer(h.source)
	p.sync()
	if err := c.sendJSON("metadata", buildMetadata(p.lc, interval.Milliseconds())); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if p.sync() {
				if err := c.sendJSON("metadata", buildMetadata(p.lc, interval.Milliseconds())); err != nil {
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
					return
				}
			}
			if err := c.sendJSON("frame", p.next()); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
