package matchmaking

// ClientID is the opaque token the transport layer assigns on connect.
type ClientID string

// registry maps connected clients to their delivery sinks.
// It is not safe for concurrent use; the Engine guards it.
type registry struct {
	sinks map[ClientID]Sink
}

func newRegistry() *registry {
	return &registry{sinks: make(map[ClientID]Sink)}
}

func (r *registry) register(id ClientID, sink Sink) {
	r.sinks[id] = sink
}

// unregister is a no-op for unknown ids.
func (r *registry) unregister(id ClientID) {
	delete(r.sinks, id)
}

func (r *registry) registered(id ClientID) bool {
	_, ok := r.sinks[id]
	return ok
}

// send delivers ev to id. Events for unregistered clients are dropped;
// it reports whether a sink was found.
func (r *registry) send(id ClientID, ev Event) bool {
	sink, ok := r.sinks[id]
	if !ok {
		return false
	}
	sink.Deliver(ev)
	return true
}

func (r *registry) len() int {
	return len(r.sinks)
}
