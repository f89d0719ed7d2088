package stub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	hubWriteWait      = 10 * time.Second
	hubMaxMessageSize = 64 * 1024
)

// Hub relays every text frame it receives to all connected clients,
// the sender included.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (hc *hubClient) write(kind int, data []byte) error {
	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()
	hc.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	return hc.conn.WriteMessage(kind, data)
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The stub serves local tooling only
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		log:     logger,
		clients: make(map[*hubClient]struct{}),
	}
}

// HandleWebSocket upgrades the connection and relays its frames until the
// client goes away.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	ws.SetReadLimit(hubMaxMessageSize)

	client := &hubClient{conn: ws}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket client connected", "clients", h.Count())

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		ws.Close()
		h.log.Debug("websocket client disconnected", "clients", h.Count())
	}()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", "error", err)
			}
			return nil
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.Broadcast(string(data))
	}
}

// Broadcast sends msg to every connected client. Clients that fail the
// write are dropped.
func (h *Hub) Broadcast(msg string) {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, []byte(msg)); err != nil {
			h.log.Debug("dropping websocket client", "error", err)
			c.conn.Close()
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client with a going-away close frame.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(hubWriteWait))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
