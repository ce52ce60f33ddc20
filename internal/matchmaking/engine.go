package matchmaking

import (
	"io"
	"log/slog"
	"sync"
)

// Engine is the matchmaking and relay state machine. It owns the client
// registry, the waiting slot and the session table, and serializes every
// state change behind a single lock.
//
// Engine never returns errors: stale session ids, unknown clients and dead
// sinks are expected under concurrent disconnects and degrade to no-ops.
type Engine struct {
	mu       sync.RWMutex
	clients  *registry
	waiting  waitingSlot
	sessions *sessionTable
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an empty Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clients:  newRegistry(),
		sessions: newSessionTable(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connect registers a client and its delivery sink. Reconnecting an id
// replaces its sink.
func (e *Engine) Connect(id ClientID, sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clients.register(id, sink)
	e.logger.Debug("client connected", "client", id)
}

// Join enters the caller into matchmaking. The first caller waits in the
// slot; the next distinct caller is matched with it.
func (e *Engine) Join(caller ClientID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.clients.registered(caller) {
		e.logger.Debug("join from unregistered client dropped", "client", caller)
		return
	}
	if s, ok := e.sessions.lookupMember(caller); ok {
		e.logger.Debug("join while paired dropped", "client", caller, "session", s.ID)
		return
	}
	e.enqueue(caller)
}

// enqueue matches caller with the waiting client or parks it in the slot.
// The caller must hold the write lock.
func (e *Engine) enqueue(caller ClientID) {
	w, ok := e.waiting.get()
	if !ok || w == caller {
		e.waiting.set(caller)
		e.clients.send(caller, Event{Type: EventWaiting})
		e.logger.Debug("client waiting", "client", caller)
		return
	}

	s := Session{ID: NewSessionID(w, caller), A: w, B: caller}
	e.sessions.add(s)
	e.waiting.clear()

	e.clients.send(w, Event{Type: EventMatched, SessionID: s.ID, PartnerID: caller})
	e.clients.send(caller, Event{Type: EventMatched, SessionID: s.ID, PartnerID: w})
	e.logger.Info("session created", "session", s.ID)
}

// Signal relays an opaque negotiation payload to target. Neither the
// caller nor the target is checked against the session; the payload is
// forwarded verbatim.
func (e *Engine) Signal(caller ClientID, sessionID SessionID, target ClientID, data []byte) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.clients.send(target, Event{Type: EventSignal, From: caller, Data: data}) {
		e.logger.Debug("signal target gone", "client", caller, "target", target, "session", sessionID)
	}
}

// Chat relays message to the caller's partner in sessionID. Unknown
// sessions and callers that are not members are dropped.
func (e *Engine) Chat(caller ClientID, sessionID SessionID, message string) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.sessions.get(sessionID)
	if !ok {
		e.logger.Debug("chat for unknown session dropped", "client", caller, "session", sessionID)
		return
	}
	if !s.Has(caller) {
		e.logger.Warn("chat from non-member dropped", "client", caller, "session", sessionID)
		return
	}
	e.clients.send(s.Other(caller), Event{Type: EventChatMessage, From: caller, Message: message})
}

// Skip ends sessionID on behalf of the caller. The partner is told it was
// skipped and left idle; the caller goes straight back into the waiting slot.
func (e *Engine) Skip(caller ClientID, sessionID SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions.get(sessionID)
	if !ok {
		e.logger.Debug("skip for unknown session dropped", "client", caller, "session", sessionID)
		return
	}
	if !s.Has(caller) {
		e.logger.Warn("skip from non-member dropped", "client", caller, "session", sessionID)
		return
	}

	e.clients.send(s.Other(caller), Event{Type: EventPartnerSkipped})
	e.sessions.remove(s.ID)
	e.logger.Info("session skipped", "session", s.ID, "client", caller)

	// The caller takes the slot even if someone else holds it.
	if w, ok := e.waiting.get(); ok && w != caller {
		e.logger.Debug("waiting client displaced by skip", "client", w)
	}
	e.waiting.set(caller)
	e.clients.send(caller, Event{Type: EventWaiting})
}

// Disconnect tears down everything the caller took part in and
// unregisters it. It is safe for clients that never joined.
func (e *Engine) Disconnect(caller ClientID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.waiting.holds(caller) {
		e.waiting.clear()
	}

	if s, ok := e.sessions.lookupMember(caller); ok {
		e.clients.send(s.Other(caller), Event{Type: EventPartnerDisconnected})
		e.sessions.remove(s.ID)
		e.logger.Info("session closed by disconnect", "session", s.ID, "client", caller)
	}

	e.clients.unregister(caller)
	e.logger.Debug("client disconnected", "client", caller)
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	Clients  int
	Waiting  ClientID
	Sessions []Session
}

// Snapshot returns a consistent copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Clients:  e.clients.len(),
		Sessions: make([]Session, 0, e.sessions.len()),
	}
	if w, ok := e.waiting.get(); ok {
		snap.Waiting = w
	}
	for _, s := range e.sessions.byID {
		snap.Sessions = append(snap.Sessions, s)
	}
	return snap
}
