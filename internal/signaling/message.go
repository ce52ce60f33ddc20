package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/BioHazard786/Strangers/internal/matchmaking"
	"github.com/BioHazard786/Strangers/internal/protocol"
)

// encodeEvent converts an engine event into its wire frame.
func encodeEvent(ev matchmaking.Event) (*protocol.Message, error) {
	switch ev.Type {
	case matchmaking.EventWaiting:
		return protocol.New(protocol.TypeWaiting, nil)

	case matchmaking.EventMatched:
		return protocol.New(protocol.TypeMatched, protocol.MatchedPayload{
			SessionID: string(ev.SessionID),
			PartnerID: string(ev.PartnerID),
		})

	case matchmaking.EventSignal:
		data := json.RawMessage(ev.Data)
		switch {
		case len(data) == 0:
			data = json.RawMessage("null")
		case !json.Valid(data):
			// Relay non-JSON payloads as a JSON string so the frame stays valid.
			quoted, err := json.Marshal(string(ev.Data))
			if err != nil {
				return nil, err
			}
			data = quoted
		}
		return protocol.New(protocol.TypeSignal, protocol.SignalPayload{
			From: string(ev.From),
			Data: data,
		})

	case matchmaking.EventChatMessage:
		return protocol.New(protocol.TypeChat, protocol.ChatPayload{
			From:    string(ev.From),
			Message: ev.Message,
		})

	case matchmaking.EventPartnerSkipped:
		return protocol.New(protocol.TypePartnerSkipped, nil)

	case matchmaking.EventPartnerDisconnected:
		return protocol.New(protocol.TypePartnerDisconnected, nil)

	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
