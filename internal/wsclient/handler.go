package wsclient

import (
	"log/slog"

	"github.com/BioHazard786/Strangers/internal/protocol"
)

// LeaveReason tells why the partner is gone.
type LeaveReason string

const (
	PartnerSkipped      LeaveReason = "skipped"
	PartnerDisconnected LeaveReason = "disconnected"
)

// Hello carries the id the server assigned to this connection.
type Hello struct {
	ClientID string
}

// Waiting means this client now holds the waiting slot.
type Waiting struct{}

// PartnerLeft means the session ended from the other side.
type PartnerLeft struct {
	Reason LeaveReason
}

// Handler decodes incoming server messages into typed events. Events are
// delivered in the order the server sent them: Hello, Waiting,
// protocol.MatchedPayload, protocol.SignalPayload, protocol.ChatPayload or
// PartnerLeft.
type Handler struct {
	client *Client
	logger *slog.Logger
	events chan any
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		logger: logger,
		events: make(chan any, 64),
	}
}

// Events is closed when the server connection ends.
func (h *Handler) Events() <-chan any {
	return h.events
}

// Start begins listening to incoming messages and routing them. It returns
// once the connection's incoming channel is closed.
func (h *Handler) Start() {
	defer close(h.events)

	for msg := range h.client.Incoming() {
		if ev := h.decode(msg); ev != nil {
			select {
			case h.events <- ev:
			case <-h.client.done:
				return
			}
		}
	}
}

func (h *Handler) decode(msg *protocol.Message) any {
	switch msg.Type {
	case protocol.TypeHello:
		var p protocol.HelloPayload
		if err := msg.Decode(&p); err != nil {
			h.logger.Warn("bad hello", "error", err)
			return nil
		}
		return Hello{ClientID: p.ClientID}

	case protocol.TypeWaiting:
		return Waiting{}

	case protocol.TypeMatched:
		var p protocol.MatchedPayload
		if err := msg.Decode(&p); err != nil {
			h.logger.Warn("bad matched", "error", err)
			return nil
		}
		return p

	case protocol.TypeSignal:
		var p protocol.SignalPayload
		if err := msg.Decode(&p); err != nil {
			h.logger.Warn("bad signal", "error", err)
			return nil
		}
		return p

	case protocol.TypeChat:
		var p protocol.ChatPayload
		if err := msg.Decode(&p); err != nil {
			h.logger.Warn("bad chat message", "error", err)
			return nil
		}
		return p

	case protocol.TypePartnerSkipped:
		return PartnerLeft{Reason: PartnerSkipped}

	case protocol.TypePartnerDisconnected:
		return PartnerLeft{Reason: PartnerDisconnected}

	default:
		h.logger.Debug("ignoring message", "type", msg.Type)
		return nil
	}
}
