package notification

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected subscriber
type wsClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHub broadcasts transaction events to connected subscribers. A slow
// subscriber whose send buffer fills up is dropped rather than blocking the
// broadcast.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	logger  *logrus.Logger
	metrics *metrics.Metrics
	closed  bool
}

// NewWebSocketHub creates a websocket broadcast hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[*wsClient]bool),
		logger:  utils.GetLogger(),
	}
}

// SetMetrics attaches the subscriber gauge
func (h *WebSocketHub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// Name implements Sender
func (h *WebSocketHub) Name() string { return "websocket" }

// Send implements Sender by broadcasting the payload to every subscriber
func (h *WebSocketHub) Send(_ context.Context, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// subscriber is not draining, detach it asynchronously
			go h.unregister(client)
		}
	}
	return nil
}

// ClientCount returns the number of connected subscribers
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all subscribers
func (h *WebSocketHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.updateGaugeLocked()
	return nil
}

// ServeWS upgrades an HTTP request to a websocket subscription
func (h *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	h.updateGaugeLocked()
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("WebSocket subscriber connected")

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.updateGaugeLocked()
	}
}

func (h *WebSocketHub) updateGaugeLocked() {
	if h.metrics != nil {
		h.metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

// readPump drains inbound frames so ping/pong control handling works. The hub
// is broadcast-only; subscriber payloads are discarded.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
