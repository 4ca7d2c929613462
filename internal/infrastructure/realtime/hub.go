package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/application/port"
	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	"github.com/garyjia/purchase-workflow/internal/domain/event"
)

// Message is the frame pushed to subscribers
type Message struct {
	Type      event.Type              `json:"type"`
	RequestID int64                   `json:"request_id"`
	Request   *entity.PurchaseRequest `json:"request,omitempty"`
	Payload   map[string]interface{}  `json:"payload,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

type envelope struct {
	requestID int64
	data      []byte
}

// Hub fans request events out to the websocket clients subscribed to that request.
// Subscription state is owned by the Run goroutine.
type Hub struct {
	rooms map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}

	mu      sync.RWMutex
	clients int

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 64),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// identity is established by the API headers, not by origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run processes subscriptions and broadcasts until ctx is done, then disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			room, ok := h.rooms[c.RequestID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[c.RequestID] = room
			}
			room[c] = struct{}{}
			h.addCount(1)

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			for c := range h.rooms[msg.requestID] {
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("Dropping slow websocket client",
						zap.String("client_id", c.ID),
						zap.Int64("request_id", c.RequestID))
					h.remove(c)
				}
			}

		case <-ctx.Done():
			for _, room := range h.rooms {
				for c := range room {
					h.remove(c)
				}
			}
			return
		}
	}
}

// remove must only be called from Run
func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.RequestID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.RequestID)
	}
	h.addCount(-1)
}

func (h *Hub) addCount(delta int) {
	h.mu.Lock()
	h.clients += delta
	h.mu.Unlock()
}

// Done is closed once Run has returned and every client was disconnected
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients
}

// Publish implements port.Broadcaster. Its signature also fits dispatcher.Handler.
func (h *Hub) Publish(ctx context.Context, evt *event.Event) error {
	data, err := json.Marshal(Message{
		Type:      evt.Type,
		RequestID: evt.RequestID,
		Request:   evt.Request,
		Payload:   evt.Payload,
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	select {
	case h.broadcast <- envelope{requestID: evt.RequestID, data: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("realtime hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS upgrades the connection and subscribes it to requestID.
// Authorization happens before this call.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, requestID int64, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Client{
		ID:        uuid.NewString(),
		UserID:    userID,
		RequestID: requestID,
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return fmt.Errorf("realtime hub stopped")
	}

	h.logger.Info("Websocket subscribed",
		zap.String("client_id", c.ID),
		zap.String("user_id", userID),
		zap.Int64("request_id", requestID))

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) unsubscribe(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Verify interface compliance
var _ port.Broadcaster = (*Hub)(nil)
