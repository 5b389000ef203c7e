// Package hub fans session notifications out to console observers over
// websockets.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	// queueSize bounds the frames buffered per observer. An observer that
	// falls this far behind is dropped.
	queueSize = 32
)

// Frame is the wire protocol: one named event with a string payload.
type Frame struct {
	Event string `json:"event"` // "message" | "qr" | "ready" | "authenticated"
	Data  string `json:"data"`
}

// Source is the session surface the hub needs.
type Source interface {
	Status() string
	CurrentState() session.State
	LastQR() string
	Subscribe(obs session.Observer) func()
}

// Config configures the hub.
type Config struct {
	Session Source
	Logger  *slog.Logger
}

// Hub is the notification fan-out. It keeps no replay buffer: observers see
// the current status on connect and live notifications afterwards.
type Hub struct {
	session     Source
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	unsubscribe func()

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// wsClient tracks a connected observer. Only its writer goroutine touches
// the socket for writes; out is closed once the client leaves the hub.
type wsClient struct {
	id   string
	conn *websocket.Conn
	out  chan Frame
}

func newClient(id string, conn *websocket.Conn) *wsClient {
	return &wsClient{id: id, conn: conn, out: make(chan Frame, queueSize)}
}

// New creates a hub subscribed to the session.
func New(cfg Config) *Hub {
	h := &Hub{
		session: cfg.Session,
		logger:  cfg.Logger,
		clients: make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // console is served from the same process
			},
		},
	}
	h.unsubscribe = cfg.Session.Subscribe(h.relay)
	return h
}

// ServeHTTP upgrades the request and keeps the observer registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(fmt.Sprintf("obs-%p", conn), conn)
	go h.writeLoop(client)
	h.attach(client)
	h.logger.Info("observer connected", "client_id", client.id, "remote", r.RemoteAddr)

	defer func() {
		h.drop(client)
		h.logger.Info("observer disconnected", "client_id", client.id)
	}()

	// Observers only listen; the read loop detects closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the session and disconnects every observer.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()
	for _, c := range clients {
		close(c.out)
		metrics.Observers.Dec()
	}
}

// Frames maps one notification onto wire frames.
func Frames(n session.Notification) []Frame {
	switch n.Event {
	case domain.EventQR:
		return []Frame{{Event: "qr", Data: n.QR}, {Event: "message", Data: n.Status}}
	case domain.EventReady:
		return []Frame{{Event: "ready", Data: n.Status}, {Event: "message", Data: n.Status}}
	case domain.EventAuthenticated:
		return []Frame{{Event: "authenticated", Data: n.Status}, {Event: "message", Data: n.Status}}
	default:
		return []Frame{{Event: "message", Data: n.Status}}
	}
}

// attach queues the current status, plus the pending QR, and registers the
// client in one critical section so no live frame can precede them.
func (h *Hub) attach(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.out <- Frame{Event: "message", Data: h.session.Status()}
	if h.session.CurrentState() == session.QrPending {
		if qr := h.session.LastQR(); qr != "" {
			c.out <- Frame{Event: "qr", Data: qr}
		}
	}
	h.clients[c.id] = c
	metrics.Observers.Inc()
}

// relay queues a notification for every observer without blocking on
// sockets. Observers whose queue is full are dropped.
func (h *Hub) relay(n session.Notification) {
	frames := Frames(n)

	var slow []*wsClient
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.enqueue(frames) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("observer too slow, dropping", "client_id", c.id)
		h.drop(c)
	}
}

// writeLoop drains the client's queue onto its socket and closes the
// socket when the queue closes or a write fails.
func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for f := range c.out {
		if err := c.write(f); err != nil {
			h.logger.Debug("websocket write failed, dropping observer", "client_id", c.id, "err", err)
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.out)
	}
	h.mu.Unlock()
	if ok {
		metrics.Observers.Dec()
	}
}

// enqueue reports false when the queue has no room for every frame.
func (c *wsClient) enqueue(frames []Frame) bool {
	for _, f := range frames {
		select {
		case c.out <- f:
		default:
			return false
		}
	}
	return true
}

func (c *wsClient) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
