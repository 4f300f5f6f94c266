// ABOUTME: WebSocket progress feed broadcasting query-server events to watchers
// ABOUTME: Implements queryserver.Listener and fans events out to every connection

package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/queryserver"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Event types on the feed.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
)

// Event is one message on the progress feed.
type Event struct {
	Type       string                      `json:"type"`
	InstanceID string                      `json:"instance_id"`
	Time       time.Time                   `json:"time"`
	Progress   *queryserver.ProgressUpdate `json:"progress,omitempty"`
	RequestID  int64                       `json:"request_id,omitempty"`
	Method     string                      `json:"method,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// The feed is read-only and served on the management listener.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks feed connections and broadcasts events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	metrics *metrics.Metrics
	closed  bool
}

var _ queryserver.Listener = (*Hub)(nil)

// NewHub returns a hub with no connected watchers.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{clients: make(map[*client]struct{}), metrics: m}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	logger.Debug("Progress feed client connected from %s", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ListenerConnected()
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.ListenerDisconnected()
}

// readPump discards inbound messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("progress feed read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("progress feed write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast queues ev for every client. Clients whose buffer is full miss it.
func (h *Hub) Broadcast(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("progress feed encode failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logger.Debug("progress feed client too slow, dropping %s event", ev.Type)
		}
	}
}

// ProgressReceived broadcasts a progress event.
func (h *Hub) ProgressReceived(instanceID string, update queryserver.ProgressUpdate) {
	u := update
	h.Broadcast(Event{Type: EventProgress, InstanceID: instanceID, Progress: &u})
}

// RequestCompleted broadcasts a completion event.
func (h *Hub) RequestCompleted(instanceID string, id int64, method string, err error) {
	ev := Event{Type: EventCompleted, InstanceID: instanceID, RequestID: id, Method: method}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Broadcast(ev)
}

// Clients is the number of connected watchers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		h.metrics.ListenerDisconnected()
	}
}
