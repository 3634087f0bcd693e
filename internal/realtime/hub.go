package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 64
)

// Event is the JSON payload delivered to chat stream subscribers.
type Event struct {
	ChatID  string             `json:"chat_id"`
	Type    string             `json:"type"`
	Message models.ChatMessage `json:"message"`
}

// Hub fans newly posted chat messages out to websocket subscribers. It
// implements the chat service's Broadcaster interface.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*connection]struct{}
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewHub constructs a chat stream hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Bearer-token auth happens before the upgrade; the origin
				// check adds nothing for non-cookie clients.
				return true
			},
		},
		log: logger.WithModule("realtime"),
	}
}

// Publish delivers a message event to every subscriber of the chat.
func (h *Hub) Publish(chatID string, message models.ChatMessage) {
	if chatID == "" {
		return
	}

	event := Event{ChatID: chatID, Type: "message", Message: message}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscribers[chatID] {
		select {
		case client.send <- event:
		default:
			// Slow consumer; drop the event rather than block the publisher.
		}
	}
}

// Serve upgrades the HTTP connection and streams chat events until the client
// disconnects.
func (h *Hub) Serve(chatID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &connection{
		conn: conn,
		send: make(chan Event, sendBufferSize),
	}

	h.subscribe(chatID, client)
	defer h.unsubscribe(chatID, client)

	go client.writeLoop()
	client.readLoop()
}

func (h *Hub) subscribe(chatID string, client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[chatID] == nil {
		h.subscribers[chatID] = make(map[*connection]struct{})
	}
	h.subscribers[chatID][client] = struct{}{}
}

func (h *Hub) unsubscribe(chatID string, client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.subscribers[chatID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscribers, chatID)
		}
	}

	client.closeOnce.Do(func() { close(client.send) })
}

type connection struct {
	conn      *websocket.Conn
	send      chan Event
	closeOnce sync.Once
}

// readLoop consumes control frames until the peer goes away. Clients do not
// send application data on chat streams.
func (c *connection) readLoop() {
	defer c.conn.Close()

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

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
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
