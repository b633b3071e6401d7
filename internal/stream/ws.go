package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/star/lensgo/internal/metrics"
)

// Control actions accepted from WebSocket clients.
const (
	actionPause = "pause"
	actionPlay  = "play"
	actionSeek  = "seek"
)

// controlMessage is sent by the client to steer playback:
//
//	{"action":"pause"}
//	{"action":"play"}
//	{"action":"seek","step":120}
type controlMessage struct {
	Action string `json:"action"`
	Step   int    `json:"step"`
}

type stateMessage struct {
	Type   string `json:"type"`
	Paused bool   `json:"paused"`
	Step   int    `json:"step"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// HandleWebSocket serves frame playback over a WebSocket with pause, play and
// seek control messages.
// GET /api/v1/ws/frames?interval_ms=50
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip, interval, ok := h.admit(w, r, "ws")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.limiter.release(ip)
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()
	defer h.track(r, ip, "ws", interval)()

	controls := make(chan controlMessage)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg controlMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket read error", "remote_ip", ip, "error", err)
				}
				return
			}
			select {
			case controls <- msg:
			case <-r.Context().Done():
				return
			}
		}
	}()

	send := func(v any) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("websocket send error", "remote_ip", ip, "error", err)
			return false
		}
		metrics.IncStreamMessages()
		return true
	}

	p := newPlayer(h.source)
	p.sync()
	if !send(buildMetadata(p.lc, interval.Milliseconds())) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	paused := false
	for {
		select {
		case <-done:
			return

		case <-r.Context().Done():
			return

		case msg := <-controls:
			switch msg.Action {
			case actionPause:
				paused = true
			case actionPlay:
				paused = false
			case actionSeek:
				p.seek(msg.Step)
				// Show the sought frame immediately, even while paused.
				f := buildFrame(p.lc, p.step)
				if !send(f) {
					return
				}
			default:
				if !send(errorMessage{Type: "error", Error: "unknown action " + msg.Action}) {
					return
				}
				continue
			}
			if !send(stateMessage{Type: "state", Paused: paused, Step: p.step}) {
				return
			}

		case <-ticker.C:
			if p.sync() {
				if !send(buildMetadata(p.lc, interval.Milliseconds())) {
					return
				}
			}
			if paused {
				continue
			}
			if !send(p.next()) {
				return
			}

		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				metrics.IncStreamErrors("send_error")
				return
			}
		}
	}
}
