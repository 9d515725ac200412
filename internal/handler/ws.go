package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"fieldops/internal/model"
	"fieldops/internal/service"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development, configure for production
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// Heartbeat interval
	pingInterval = 30 * time.Second
	// Write timeout
	writeTimeout = 10 * time.Second
)

// trackMessage is one live position update sent to clients.
type trackMessage struct {
	AgentID    string  `json:"agent_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Accuracy   float64 `json:"accuracy"`
	Activity   string  `json:"activity,omitempty"`
	RecordedAt int64   `json:"recorded_at"`
}

// WSMessage represents a WebSocket message from a client
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	TenantID string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *WSHub
	AgentID  string // Filter by agent ID (empty means all agents)
}

// WSHub fans live tracking events out to connected supervisors. It feeds on
// the same NATS subjects the workflow engine publishes.
type WSHub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastItem
	register   chan *Client
	unregister chan *Client
	natsConn   *nats.Conn
	gpsSub     *nats.Subscription
	visitSub   *nats.Subscription
	mu         sync.RWMutex
}

type broadcastItem struct {
	tenantID string
	agentID  string
	payload  []byte
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(nc *nats.Conn) *WSHub {
	return &WSHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastItem, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		natsConn:   nc,
	}
}

// Run starts the hub's event loop
func (h *WSHub) Run() {
	gpsSub, err := h.natsConn.Subscribe(service.SubjectGPSSample, func(msg *nats.Msg) {
		var event struct {
			TenantID string          `json:"tenant_id"`
			Data     model.GPSSample `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[WS] Failed to unmarshal GPS event: %v", err)
			return
		}

		data, err := json.Marshal(map[string]interface{}{
			"type": "track",
			"data": trackMessage{
				AgentID:    event.Data.AgentID,
				Lat:        event.Data.Latitude,
				Lon:        event.Data.Longitude,
				Accuracy:   event.Data.Accuracy,
				Activity:   event.Data.ActivityType,
				RecordedAt: event.Data.RecordedAt.Unix(),
			},
		})
		if err != nil {
			log.Printf("[WS] Failed to marshal track message: %v", err)
			return
		}
		h.broadcast <- broadcastItem{tenantID: event.TenantID, agentID: event.Data.AgentID, payload: data}
	})
	if err != nil {
		log.Printf("[WS] Failed to subscribe to GPS samples: %v", err)
		return
	}
	h.gpsSub = gpsSub

	visitSub, err := h.natsConn.Subscribe("field.visit.>", func(msg *nats.Msg) {
		var event struct {
			TenantID string      `json:"tenant_id"`
			Data     model.Visit `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[WS] Failed to unmarshal visit event: %v", err)
			return
		}

		data, err := json.Marshal(map[string]interface{}{
			"type":    "visit",
			"subject": msg.Subject,
			"data":    event.Data,
		})
		if err != nil {
			log.Printf("[WS] Failed to marshal visit message: %v", err)
			return
		}
		h.broadcast <- broadcastItem{tenantID: event.TenantID, agentID: event.Data.AgentID, payload: data}
	})
	if err != nil {
		log.Printf("[WS] Failed to subscribe to visit events: %v", err)
		return
	}
	h.visitSub = visitSub

	log.Println("[WS] Hub started, subscribed to GPS and visit updates")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s, total clients: %d", client.ID, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected: %s, total clients: %d", client.ID, len(h.clients))

		case item := <-h.broadcast:
			h.dispatch(item)
		}
	}
}

// dispatch fans one event out to matching clients. Slow clients are dropped
// inline; sending them back through unregister would block the loop that is
// running this dispatch.
func (h *WSHub) dispatch(item broadcastItem) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		// Clients only see their own tenant; optional agent filter.
		if client.TenantID != item.tenantID {
			continue
		}
		if client.AgentID != "" && client.AgentID != item.agentID {
			continue
		}
		select {
		case client.Send <- item.payload:
		default:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("[WS] Client %s too slow, dropped", client.ID)
		}
	}
}

// Stop stops the hub and cleans up resources
func (h *WSHub) Stop() {
	if h.gpsSub != nil {
		h.gpsSub.Unsubscribe()
	}
	if h.visitSub != nil {
		h.visitSub.Unsubscribe()
	}
	h.mu.Lock()
	for client := range h.clients {
		close(client.Send)
		client.Conn.Close()
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReadPump handles incoming messages from the client
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Client %s read error: %v", c.ID, err)
			}
			break
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err == nil {
			switch wsMsg.Type {
			case "subscribe":
				// Client wants to follow one agent
				var data struct {
					AgentID string `json:"agent_id"`
				}
				if err := json.Unmarshal(wsMsg.Data, &data); err == nil {
					c.AgentID = data.AgentID
					log.Printf("[WS] Client %s subscribed to agent %s", c.ID, c.AgentID)
				}
			case "ping":
				select {
				case c.Send <- []byte(`{"type":"pong"}`):
				default:
				}
			}
		}
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub *WSHub
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleTrack upgrades the connection and streams live tracking updates.
// Runs behind the auth middleware so the tenant comes from the token.
func (h *WSHandler) HandleTrack(c *gin.Context) {
	tenantID := c.GetString("tenantID")
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      h.hub,
		AgentID:  c.Query("agent_id"),
	}

	client.Hub.register <- client

	go client.WritePump()
	go client.ReadPump()

	welcome := map[string]interface{}{
		"type":      "connected",
		"message":   "Connected to field tracking stream",
		"client_id": client.ID,
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// GetStats returns WebSocket hub statistics
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.GetClientCount(),
	})
}
