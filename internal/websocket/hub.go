package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/storyforge/api/internal/model"
)

// Client represents a WebSocket client subscribed to one story's pipeline
type Client struct {
	StoryID string
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by story ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to story subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	StoryID string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.StoryID] == nil {
				h.clients[client.StoryID] = make(map[*Client]bool)
			}
			h.clients[client.StoryID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for story %s", client.StoryID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.StoryID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.StoryID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from story %s", client.StoryID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.StoryID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastStage announces a pipeline stage change to all story subscribers
func (h *Hub) BroadcastStage(storyID, stage, status string) {
	msg := model.WSStageMessage{
		Type:    model.WSMessageTypeStage,
		StoryID: storyID,
		Stage:   stage,
		Status:  status,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal stage message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		StoryID: storyID,
		Message: data,
	}
}

// BroadcastSegment announces a converged segment image to all story subscribers
func (h *Hub) BroadcastSegment(storyID string, segment *model.Segment) {
	msg := model.WSSegmentMessage{
		Type:      model.WSMessageTypeSegment,
		StoryID:   storyID,
		SegmentID: segment.ID,
		Order:     segment.Order,
		ImageURL:  segment.ImageURL,
		Error:     segment.Error,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal segment message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		StoryID: storyID,
		Message: data,
	}
}

// BroadcastError sends an error message to all story subscribers
func (h *Hub) BroadcastError(storyID, code, message string) {
	msg := model.WSErrorMessage{
		Type:    model.WSMessageTypeError,
		StoryID: storyID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal error message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		StoryID: storyID,
		Message: data,
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, storyID string) {
	client := &Client{
		StoryID: storyID,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
