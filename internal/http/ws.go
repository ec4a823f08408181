package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "sitecost/internal/log"
	"sitecost/internal/services"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	clientQueue = 16
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans sync status events out to websocket subscribers. It satisfies
// services.Notifier; Notify never blocks, and a subscriber that falls behind
// is dropped.
type Hub struct {
	mu         sync.Mutex
	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	last       []byte
	upgrader   websocket.Upgrader
	done       chan struct{}
}

var _ services.Notifier = (*Hub)(nil)

// NewHub creates a hub. allowedOrigins restricts upgrades; an empty list or
// "*" accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			last := h.last
			n := len(h.clients)
			h.mu.Unlock()
			if last != nil {
				h.offer(c, last)
			}
			slog.Debug("Websocket client connected", "clients", n)
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.mu.Lock()
			h.last = msg
			clients := make([]*wsClient, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.Unlock()
			for _, c := range clients {
				h.offer(c, msg)
			}
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) offer(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("Websocket client too slow, dropping")
		h.drop(c)
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Notify implements services.Notifier.
func (h *Hub) Notify(e services.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to encode sync event", "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		slog.Warn("Sync event dropped, hub backlog full", "type", e.Type)
	}
}

// Clients is the number of live subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events. initial, when set, is sent
// before any broadcast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial *services.Event) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.FromContext(r.Context()).Warn("Websocket upgrade failed", applog.FieldError, err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientQueue)}
	if initial != nil {
		if payload, err := json.Marshal(initial); err == nil {
			c.send <- payload
		}
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames; it exists to process pongs and notice
// closed connections.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
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

func (h *Hub) writePump(c *wsClient) {
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
