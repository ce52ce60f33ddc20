package signaling

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Strangers/internal/matchmaking"
	"github.com/BioHazard786/Strangers/internal/protocol"
)

// Limits bounds a single websocket connection.
type Limits struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration

	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Outbound messages buffered per client before new ones are dropped.
	SendBuffer int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024, // enough for SDP offers with many candidates
		SendBuffer:     256,
	}
}

// Client is a wrapper for a single websocket connection (a stranger).
// It implements matchmaking.Sink.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   matchmaking.ClientID

	// send is a buffered channel for all outbound messages.
	// Only the hub loop writes to it, and only the hub loop closes it.
	send chan *protocol.Message

	logger *slog.Logger
}

// NewClient wraps conn and assigns it a fresh random id.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := matchmaking.ClientID(uuid.NewString())
	return &Client{
		hub:    hub,
		conn:   conn,
		id:     id,
		send:   make(chan *protocol.Message, hub.limits.SendBuffer),
		logger: hub.logger.With("client", id, "remote", conn.RemoteAddr().String()),
	}
}

// Deliver encodes ev and queues it for the write pump without blocking.
func (c *Client) Deliver(ev matchmaking.Event) {
	msg, err := encodeEvent(ev)
	if err != nil {
		c.logger.Error("encode event", "type", ev.Type, "error", err)
		return
	}
	c.enqueue(msg)
}

func (c *Client) enqueue(msg *protocol.Message) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	limits := c.hub.limits
	c.conn.SetReadLimit(limits.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(limits.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed frame dropped", "error", err)
			continue
		}

		if !c.hub.submit(c, &msg) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	limits := c.hub.limits
	ticker := time.NewTicker(limits.PingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(limits.WriteWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(limits.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
