package p2p

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Data channel message types.
const (
	MessageTypeText = "text"
	MessageTypeBye  = "bye"
)

// Message represents every data channel frame.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// TextPayload is one chat line sent peer to peer.
type TextPayload struct {
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// DecodePayload decodes the message payload into the provided struct.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// EncodeText frames a chat line for the data channel.
func EncodeText(text string, now time.Time) ([]byte, error) {
	msg, err := NewMessage(MessageTypeText, TextPayload{Text: text, SentAt: now.UnixMilli()})
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// EncodeBye frames the goodbye sent before closing the channel.
func EncodeBye() ([]byte, error) {
	msg, err := NewMessage(MessageTypeBye, struct{}{})
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// DecodeFrame parses a data channel frame.
func DecodeFrame(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	return msg, nil
}
