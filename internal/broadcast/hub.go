// Package broadcast fans session events out to dashboard WebSocket clients.
// Delivery is fire-and-forget: slow or dead consumers are dropped, never
// waited on.
package broadcast

import (
	"net/http"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/waplex/waplex/internal/session"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard runs on a separate origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected dashboard clients and broadcasts every session event
// to all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// SubscribeBus attaches the hub to the session event topic. Async so event
// publication never blocks on broadcasting.
func (h *Hub) SubscribeBus(bus EventBus.Bus) error {
	return bus.SubscribeAsync(session.BusTopic, h.onEvent, false)
}

func (h *Hub) onEvent(evt session.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		zap.L().Warn("broadcast: event marshal failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer; drop it rather than stall the broadcast.
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Upgrade switches an HTTP request to a WebSocket event stream.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice closes and answer pings.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
