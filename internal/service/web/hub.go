package web

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"stealthgate/internal/engine/controller"
	"stealthgate/internal/shared/logger"
)

// Message is the generic websocket frame sent to dashboard clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active websocket clients and broadcasts engine
// snapshots to them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
	}
}

// Run owns the client set. It must run on its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
					// The read pump handles unregistering on its next error.
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastSnapshot fans one engine snapshot out to every connected client.
func (h *Hub) BroadcastSnapshot(snap *controller.Snapshot) {
	payload, err := json.Marshal(Message{Type: "snapshot", Data: snap})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal snapshot for broadcast.")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logger.Debug().Msg("Snapshot broadcast dropped, hub busy.")
	}
}
