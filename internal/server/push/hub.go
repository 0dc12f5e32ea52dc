// Package push fans notifications out to the WebSocket connections of an
// identity's devices.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/services"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	sendBuffer   = 16
	maxFrameSize = 512
)

type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub tracks open connections per identity. Notify never blocks: a
// connection whose buffer is full loses the frame, which is harmless since
// clients sync everything that is pending anyway.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]map[*conn]struct{}
	closed   bool
	upgrader websocket.Upgrader
	log      logging.Logger

	pingPeriod time.Duration
	pongWait   time.Duration
}

func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		conns: map[string]map[*conn]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:        log.With("module", "push"),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
}

// Serve upgrades the request and keeps the connection registered for
// identityID until either side closes it. It blocks for the connection's
// lifetime.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identityID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, send: make(chan []byte, sendBuffer)}
	if !h.register(identityID, c) {
		_ = ws.Close()
		return
	}
	h.log.Debug(r.Context(), "push client connected", "identity", identityID)

	done := make(chan struct{})
	go func() {
		h.readLoop(c)
		close(done)
	}()
	h.writeLoop(c, done)

	h.unregister(identityID, c)
	_ = ws.Close()
	h.log.Debug(r.Context(), "push client disconnected", "identity", identityID)
}

// readLoop only drains control frames; clients send nothing else.
func (h *Hub) readLoop(c *conn) {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(identityID string, c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set := h.conns[identityID]
	if set == nil {
		set = map[*conn]struct{}{}
		h.conns[identityID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(identityID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[identityID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, identityID)
	}
}

// Notify sends n to every open connection of identityID.
func (h *Hub) Notify(ctx context.Context, identityID string, n services.Notification) {
	msg, err := json.Marshal(n)
	if err != nil {
		h.log.Error(ctx, "encode notification", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[identityID] {
		select {
		case c.send <- msg:
		default:
			h.log.Warn(ctx, "push buffer full, frame dropped", "identity", identityID, "type", n.Type)
		}
	}
}

// Count returns the number of open connections of identityID.
func (h *Hub) Count(identityID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[identityID])
}

// Close tells every connected client to go away and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.conns {
		for c := range set {
			close(c.send)
		}
		delete(h.conns, id)
	}
}
