package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// viewerEvent is what browsers receive for each consumed message.
type viewerEvent struct {
	Topic     string          `json:"topic"`
	EventType string          `json:"eventType"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// decodeEvent wraps a consumed message. The eventType header set by the
// publisher wins over the payload field.
func decodeEvent(msg kafka.Message) (viewerEvent, error) {
	var body struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return viewerEvent{}, err
	}

	ev := viewerEvent{
		Topic:     msg.Topic,
		EventType: body.EventType,
		Key:       string(msg.Key),
		Payload:   json.RawMessage(msg.Value),
	}
	for _, h := range msg.Headers {
		if h.Key == "eventType" && len(h.Value) > 0 {
			ev.EventType = string(h.Value)
		}
	}
	return ev, nil
}

// Hub fans events out to connected websocket clients.
type Hub struct {
	logger     zerolog.Logger
	clients    map[*websocket.Conn]struct{}
	broadcast  chan viewerEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{} // closed when run returns
	mu         sync.RWMutex
}

func newHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan viewerEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client disconnected")

		case ev := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(ev); err != nil {
					h.logger.Warn().Err(err).Msg("Websocket write failed")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	// Local viewer; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		select {
		case hub.register <- conn:
		case <-hub.done:
			conn.Close()
			return
		}

		// Reads only detect disconnects.
		go func() {
			defer func() {
				select {
				case hub.unregister <- conn:
				case <-hub.done:
				}
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// statusHandler reports the connected client count.
func statusHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"clients": hub.Clients()})
	}
}
