package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"postforge/internal/studio"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send control frames.
	maxMessageSize = 512
)

// streamMessage is one frame pushed to the studio client.
type streamMessage struct {
	Type string          `json:"type"`
	Data studio.Snapshot `json:"data"`
}

// Stream pushes studio snapshots over a WebSocket after every state change.
type Stream struct {
	studio   *Studio
	upgrader websocket.Upgrader

	closeOnce sync.Once
	closing   chan struct{}
}

// NewStream creates the snapshot stream. The upgrader keeps gorilla's
// same-origin check.
func NewStream(s *Studio) *Stream {
	return &Stream{
		studio: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		closing: make(chan struct{}),
	}
}

// Close ends every open stream. Hijacked connections are not closed by
// http.Server.Shutdown.
func (h *Stream) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Serve upgrades the request and streams snapshots until the peer leaves.
func (h *Stream) Serve(w http.ResponseWriter, r *http.Request) {
	s := h.studio.session(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	gone := make(chan struct{})
	go readPump(conn, gone)

	writePump(conn, s, h.attached(s), updates, gone, h.closing)
}

// attached reports whether s is still the manager's session for its ID.
// The lookup also counts as activity, so a watching client is not evicted.
func (h *Stream) attached(s *studio.Session) func() bool {
	return func() bool {
		cur, ok := h.studio.manager.Lookup(s.ID())
		return ok && cur == s
	}
}

// readPump discards client messages and keeps the read deadline alive
// through pongs. It closes gone when the connection fails.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}

// writePump sends the current snapshot, then a fresh one per update signal.
// Once attached reports false the session is gone and the stream ends.
func writePump(conn *websocket.Conn, s *studio.Session, attached func() bool, updates <-chan struct{}, gone, closing <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(streamMessage{Type: "snapshot", Data: s.Snapshot()})
	}
	ended := func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(writeWait))
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-updates:
			if !attached() {
				ended()
				return
			}
			if err := send(); err != nil {
				return
			}
		case <-ticker.C:
			if !attached() {
				ended()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-gone:
			return
		}
	}
}
