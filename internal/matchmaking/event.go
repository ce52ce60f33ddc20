package matchmaking

// EventType identifies an outbound event delivered to a client.
type EventType string

const (
	EventWaiting             EventType = "waiting"
	EventMatched             EventType = "matched"
	EventSignal              EventType = "signal"
	EventChatMessage         EventType = "chat-message"
	EventPartnerSkipped      EventType = "partner-skipped"
	EventPartnerDisconnected EventType = "partner-disconnected"
)

// Event is an engine-to-client message. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// matched
	SessionID SessionID
	PartnerID ClientID

	// signal, chat-message
	From ClientID

	// signal: opaque negotiation payload, never inspected.
	Data []byte

	// chat-message
	Message string
}

// Sink pushes events to one connected client. Deliver must not block;
// a sink that cannot accept an event drops it.
type Sink interface {
	Deliver(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Deliver calls f(ev).
func (f SinkFunc) Deliver(ev Event) { f(ev) }
