package live

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
)

// Message is the wire format pushed to dashboard clients.
type Message struct {
	Type    string `json:"type"`
	TeamID  int    `json:"team_id"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans team events out to subscribed dashboard connections. Rooms
// are keyed by team id; the flow is one-way, server to client.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	rooms  map[string]map[*Client]bool
	mu     sync.RWMutex
	logger *slog.Logger
}

type outbound struct {
	room string
	data []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 64),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func roomKey(teamID int) string {
	return "team_" + strconv.Itoa(teamID)
}

// Publish satisfies services.EventPublisher. Marshal failures are
// logged and dropped; live updates are best-effort.
func (h *Hub) Publish(teamID int, eventType string, payload any) {
	data, err := json.Marshal(Message{Type: eventType, TeamID: teamID, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal live message",
			slog.String("type", eventType),
			slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- outbound{room: roomKey(teamID), data: data}:
	default:
		h.logger.Warn("live broadcast queue full, message dropped",
			slog.Int("team_id", teamID),
			slog.String("type", eventType))
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.room]; !ok {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.room]; ok {
				if _, okClient := room[client]; okClient {
					client.closeSend()
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, client.room)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer; drop the message rather than
					// block every other client in the room.
				}
			}
			h.mu.RUnlock()
		}
	}
}
