package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// envelope is the frame written to a subscriber's websocket. The
// channel is user.<id>; a connection only ever carries its own channel.
type envelope struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

// Client is one websocket subscription bound to a user.
type Client struct {
	userID int64
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans events out to websocket subscribers keyed by user id.
// It implements Publisher.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[int64]map[*Client]struct{}),
	}
}

// Register subscribes a connection to its user's channel.
func (h *Hub) Register(userID int64, conn *websocket.Conn) *Client {
	client := &Client{userID: userID, conn: conn}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	h.mu.Unlock()
	return client
}

// Unregister drops a subscription and closes its connection.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if set, ok := h.clients[client.userID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.userID)
		}
	}
	h.mu.Unlock()
	client.conn.Close()
}

// Publish delivers an event to every connection of the target user.
// A failed write drops that connection; nothing is retried.
func (h *Hub) Publish(ev Event) {
	frame := envelope{
		Channel: fmt.Sprintf("user.%d", ev.UserID),
		Event:   ev.Name,
		Data:    ev.Data,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal event", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[ev.UserID]))
	for client := range h.clients[ev.UserID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.write(data); err != nil {
			h.logger.Warn("dropping websocket subscriber", "user_id", ev.UserID, "error", err)
			h.Unregister(client)
		}
	}
}

// Listen blocks reading a subscriber's connection until it errors, then
// unregisters it. Inbound payloads are ignored; the socket is push-only.
func (h *Hub) Listen(client *Client) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.Unregister(client)
			return
		}
	}
}
