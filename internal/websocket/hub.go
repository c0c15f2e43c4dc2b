package websocket

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hub maintains the set of connected dashboard clients and broadcasts
// governance events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *logrus.Logger
	mu         sync.RWMutex
	stats      *HubStats

	pingPeriod time.Duration
	writeWait  time.Duration
}

// HubOptions tunes connection keepalive timing. Zero values fall back
// to the defaults.
type HubOptions struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger, opts HubOptions) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		stats: &HubStats{
			LastActivity: time.Now(),
		},
		pingPeriod: opts.PingInterval,
		writeWait:  opts.WriteTimeout,
	}
}

// Run starts the hub loop; intended to run in its own goroutine.
func (h *Hub) Run() {
	h.logger.Info("Ops feed hub started")

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": len(h.clients),
	}).Info("Ops feed client connected")

	welcome := Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}
	client.send <- welcome.ToJSON()
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()

		h.logger.WithFields(logrus.Fields{
			"client_id":         client.ID,
			"connected_clients": len(h.clients),
		}).Info("Ops feed client disconnected")
	}
}

func (h *Hub) broadcastMessage(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.stats.MessagesSent++
	h.stats.LastActivity = time.Now()

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer, drop the connection.
			h.unregister <- client
		}
	}
}

func (h *Hub) sendHeartbeat() {
	heartbeat := Message{
		Type: MessageTypeHeartbeat,
		Data: map[string]interface{}{
			"clients": h.GetClientCount(),
		},
	}
	h.BroadcastToAll(heartbeat)
}

// BroadcastToAll broadcasts a message to all connected clients without
// blocking the caller.
func (h *Hub) BroadcastToAll(message Message) {
	data := message.ToJSON()
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Broadcast channel is full, message dropped")
	}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statsCopy := *h.stats
	statsCopy.ConnectedClients = len(h.clients)
	return &statsCopy
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
