package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBuffer is the per-client outbound queue. A client that cannot
// keep up has messages dropped rather than stalling the room.
const sendBuffer = 256

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket connection. It satisfies collab.Conn.
type Client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{id: id, conn: conn, send: make(chan []byte, sendBuffer)}
}

// ID returns the connection's identifier.
func (c *Client) ID() string { return c.id }

// Send queues an enveloped event for delivery. It never blocks: if the
// outbound queue is full the message is dropped, and sends to a closed
// connection are ignored.
func (c *Client) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal outbound payload", "event", event, "error", err)
		return
	}
	buf, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		slog.Error("marshal outbound envelope", "event", event, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- buf:
	default:
		slog.Warn("dropping message for slow client", "conn", c.id, "event", event)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
