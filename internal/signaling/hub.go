package signaling

import (
	"context"
	"io"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Strangers/internal/matchmaking"
	"github.com/BioHazard786/Strangers/internal/protocol"
)

// inbound is a frame read from a client, tagged with its sender.
type inbound struct {
	client *Client
	msg    *protocol.Message
}

// Hub is the transport side of the server. It owns the websocket clients and
// feeds their lifecycle and messages into the matchmaking engine from a
// single goroutine.
type Hub struct {
	engine *matchmaking.Engine
	limits Limits
	logger *slog.Logger

	// clients holds every registered connection, keyed by id.
	// Only the Run goroutine touches it.
	clients map[matchmaking.ClientID]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	// done is closed when Run returns.
	done chan struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLimits overrides the per-connection limits.
func WithLimits(l Limits) HubOption {
	return func(h *Hub) { h.limits = l }
}

// WithHubLogger sets the hub logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a Hub that drives engine.
func NewHub(engine *matchmaking.Engine, opts ...HubOption) *Hub {
	h := &Hub{
		engine:     engine,
		limits:     DefaultLimits(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		clients:    make(map[matchmaking.ClientID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Engine returns the engine the hub drives.
func (h *Hub) Engine() *matchmaking.Engine {
	return h.engine
}

// Run starts the hub's main processing loop. It returns when ctx is
// cancelled, disconnecting every remaining client from the engine and
// stopping its write pump.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for id := range h.clients {
			h.engine.Disconnect(id)
		}
		// WritePump sends a close frame and closes the connection once its
		// channel is closed.
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub stopping", "clients", len(h.clients))
			return

		case client := <-h.register:
			h.clients[client.id] = client
			h.engine.Connect(client.id, client)
			client.logger.Info("client registered")

			hello, err := protocol.New(protocol.TypeHello, protocol.HelloPayload{ClientID: string(client.id)})
			if err == nil {
				client.enqueue(hello)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; !ok {
				continue
			}
			delete(h.clients, client.id)
			h.engine.Disconnect(client.id)
			client.logger.Info("client unregistered")

			// Close the client's send channel to stop its WritePump
			close(client.send)

		case in := <-h.inbound:
			h.dispatch(in.client, in.msg)
		}
	}
}

// Attach registers an upgraded websocket connection and starts its read and
// write pumps. The connection is closed if the hub has already stopped.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	client := NewClient(h, conn)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	// Start the client's read and write pumps in separate goroutines
	// These methods will handle the client's lifecycle
	go client.WritePump()
	go client.ReadPump()
	return client
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// submit queues a frame for dispatch. It reports false once the hub has
// stopped.
func (h *Hub) submit(c *Client, msg *protocol.Message) bool {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// dispatch turns a client frame into an engine call. Malformed frames are
// logged and dropped.
func (h *Hub) dispatch(c *Client, msg *protocol.Message) {
	c.logger.Debug("message received", "type", msg.Type)

	switch msg.Type {
	case protocol.TypeJoin:
		h.engine.Join(c.id)

	case protocol.TypeSignal:
		var req protocol.SignalRequest
		if err := msg.Decode(&req); err != nil {
			c.logger.Warn("malformed signal dropped", "error", err)
			return
		}
		if req.To == "" {
			c.logger.Warn("malformed signal dropped", "error", protocol.ErrMissingField, "field", "to")
			return
		}
		h.engine.Signal(c.id, matchmaking.SessionID(req.SessionID), matchmaking.ClientID(req.To), req.Data)

	case protocol.TypeChat:
		var req protocol.ChatRequest
		if err := msg.Decode(&req); err != nil {
			c.logger.Warn("malformed chat message dropped", "error", err)
			return
		}
		if req.SessionID == "" {
			c.logger.Warn("malformed chat message dropped", "error", protocol.ErrMissingField, "field", "sessionId")
			return
		}
		h.engine.Chat(c.id, matchmaking.SessionID(req.SessionID), req.Message)

	case protocol.TypeSkip:
		var req protocol.SkipRequest
		if err := msg.Decode(&req); err != nil {
			c.logger.Warn("malformed skip dropped", "error", err)
			return
		}
		if req.SessionID == "" {
			c.logger.Warn("malformed skip dropped", "error", protocol.ErrMissingField, "field", "sessionId")
			return
		}
		h.engine.Skip(c.id, matchmaking.SessionID(req.SessionID))

	default:
		c.logger.Warn("unknown message type", "type", msg.Type)
	}
}
