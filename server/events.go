package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/scaffold/logging"
)

// Event is one frame on the lifecycle event stream.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Seq     int64  `json:"seq"`
	TS      int64  `json:"ts"`
}

// EventHub manages websocket subscribers to the lifecycle event stream.
// The stream is write-only: inbound frames are read and discarded to
// service control messages.
type EventHub struct {
	mu       sync.RWMutex
	clients  map[string]*eventClient
	seq      atomic.Int64
	upgrader websocket.Upgrader
	log      *logging.Logger
}

type eventClient struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newEventHub(log *logging.Logger, allowedOrigins []string) *EventHub {
	return &EventHub{
		clients: make(map[string]*eventClient),
		log:     log.Sub("events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // same-origin or non-browser clients
				}
				return isOriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

func (h *EventHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &eventClient{id: uuid.New().String(), conn: conn}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.Debug().Str("connId", c.id).Msg("event subscriber connected")

	// Drain inbound frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	h.log.Debug().Str("connId", c.id).Msg("event subscriber disconnected")
}

// Broadcast sends an event to every subscriber. Send failures drop the
// line for that subscriber only.
func (h *EventHub) Broadcast(typ string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	evt := Event{
		Type:    typ,
		Payload: payload,
		Seq:     h.seq.Add(1),
		TS:      time.Now().UnixMilli(),
	}
	for _, c := range h.clients {
		if err := c.send(evt); err != nil {
			h.log.Warn().Err(err).Str("connId", c.id).Msg("event send failed")
		}
	}
}

// Count returns the number of connected subscribers.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

func (c *eventClient) send(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.conn.WriteJSON(evt)
}

func (c *eventClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
