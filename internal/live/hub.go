// Package live pushes rental, purchase and ticket events to connected admin
// dashboards over websockets.
package live

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"lendery/internal/logger"
)

// Hub keeps the set of connected clients and fans broadcasts out to them.
// All map access happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			logger.Debug("Live client connected", "user_id", client.userID, "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int64(len(h.clients)))
				logger.Debug("Live client disconnected", "user_id", client.userID, "clients", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					delete(h.clients, client)
					close(client.send)
					h.count.Store(int64(len(h.clients)))
				}
			}
		}
	}
}

// join adds c to the hub. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues an event for every connected client. It never blocks; when
// the queue is full the event is dropped and logged.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	if h == nil {
		return
	}

	message, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		logger.Error("Failed to encode live event", "event", eventType, "error", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		logger.Warn("Live event dropped, broadcast queue full", "event", eventType)
	}
}

// ClientCount reports how many subscribers are connected.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	return int(h.count.Load())
}
