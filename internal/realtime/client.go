package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/advisorly/advisorly/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound event size.
	maxEventSize = 8 * 1024

	// Outbound buffer per connection; a peer that cannot drain this is
	// dropped rather than allowed to stall the room.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is enforced at the gateway.
		return true
	},
}

// Client is one live websocket connection and its room membership.
type Client struct {
	id      string
	userID  uuid.UUID
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	channel uuid.UUID // joined channel, uuid.Nil when none

	// mu serializes deliver against close. Broadcasts snapshot the room
	// outside the hub lock, so without this a disconnect racing a
	// broadcast would send on a closed channel.
	mu     sync.Mutex
	closed bool
}

// ServeWS upgrades the request and registers the connection. userID
// must already be authenticated by the HTTP middleware.
func ServeWS(hub *Hub, userID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		id:     ulid.Make().String(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	hub.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump reads events off the connection and dispatches them to the
// hub, one goroutine per connection so a slow channel never blocks
// another connection's reads.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("connection_id", c.id).Msg("connection closed")
			}
			return
		}

		var event InboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.sendError("malformed event")
			continue
		}
		if err := event.Validate(); err != nil {
			c.sendError(err.Error())
			continue
		}

		metrics.WSEvents.WithLabelValues(event.Type).Inc()
		c.hub.dispatch(c, &event)
	}
}

// writePump flushes the send buffer and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Drain queued events into the same write window.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues an event for the connection. Returns false when the
// connection is gone or the peer cannot keep up and should be dropped.
func (c *Client) deliver(event OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event.encode():
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once. Safe against concurrent
// deliver calls; later delivers report failure instead of panicking.
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// sendError delivers a typed error event to this connection only.
// Failures never terminate the connection.
func (c *Client) sendError(message string) {
	c.deliver(OutboundEvent{Type: EventError, Payload: ErrorPayload{Message: message}})
}
