// Package ws pushes engine events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// defaultTypes is what a fresh connection receives until it subscribes.
var defaultTypes = []domain.EventType{
	domain.EventOpportunityDetected,
	domain.EventOpportunityExpired,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Snapshotter lists the opportunities that are live right now.
type Snapshotter interface {
	ListLive() []domain.Opportunity
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[domain.EventType]bool
	mu   sync.RWMutex
}

// subscribeMsg is sent by clients to change the event types they receive:
//
//	{"action":"subscribe","events":["quote_updated"]}
type subscribeMsg struct {
	Action string             `json:"action"`
	Events []domain.EventType `json:"events"`
}

// Hub fans engine events out to connected websocket clients. Each client
// chooses which event types it wants; slow clients lose messages rather than
// stall the others.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	snapshot   Snapshotter
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub. snapshot may be nil, in which case new clients get
// no initial snapshot.
func NewHub(snapshot Snapshotter, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run relays events until ctx is cancelled or events is closed.
func (h *Hub) Run(ctx context.Context, events <-chan domain.Event) error {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws: marshal event", slog.String("error", err.Error()))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(ev.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping message for slow client", slog.String("event", string(ev.Type)))
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[domain.EventType]bool, len(defaultTypes)),
	}
	for _, t := range defaultTypes {
		c.subs[t] = true
	}

	c.sendSnapshot()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendSnapshot queues the live opportunities ahead of any relayed event.
func (c *client) sendSnapshot() {
	opps := []domain.Opportunity{}
	if c.hub.snapshot != nil {
		opps = c.hub.snapshot.ListLive()
	}
	msg, err := json.Marshal(map[string]any{
		"event":         "snapshot",
		"opportunities": opps,
		"at":            time.Now().UTC(),
	})
	if err != nil {
		return
	}
	c.send <- msg
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Events {
			c.subs[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Events {
			delete(c.subs, t)
		}
	}
}

func (c *client) isSubscribed(t domain.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[t]
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
