// Package protocol defines the JSON frames exchanged between clients and the
// matchmaking server over the websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the envelope for every websocket frame, in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server message types.
const (
	TypeJoin   = "join"
	TypeSkip   = "skip"
	TypeChat   = "chat-message"
	TypeSignal = "signal"
)

// Server to client message types. TypeChat and TypeSignal are shared.
const (
	TypeHello               = "hello"
	TypeWaiting             = "waiting"
	TypeMatched             = "matched"
	TypePartnerSkipped      = "partner-skipped"
	TypePartnerDisconnected = "partner-disconnected"
)

// HelloPayload tells a freshly connected client its id.
type HelloPayload struct {
	ClientID string `json:"clientId"`
}

// MatchedPayload announces a new session.
type MatchedPayload struct {
	SessionID string `json:"sessionId"`
	PartnerID string `json:"partnerId"`
}

// SignalRequest is sent by a client to relay negotiation data to a peer.
type SignalRequest struct {
	SessionID string          `json:"sessionId"`
	To        string          `json:"to"`
	Data      json.RawMessage `json:"data"`
}

// SignalPayload is relayed negotiation data as received by the target.
type SignalPayload struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// ChatRequest is sent by a client to message its partner.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ChatPayload is a relayed chat message as received by the partner.
type ChatPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// SkipRequest ends the caller's session.
type SkipRequest struct {
	SessionID string `json:"sessionId"`
}

// ErrMissingField reports a payload without a required field.
var ErrMissingField = errors.New("missing required field")

// New builds a Message, encoding payload when it is non-nil.
func New(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = b
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: %w: payload", m.Type, ErrMissingField)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
