package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Strangers/internal/config"
	"github.com/BioHazard786/Strangers/internal/p2p"
	"github.com/BioHazard786/Strangers/internal/protocol"
	"github.com/BioHazard786/Strangers/internal/wsclient"
)

// State is where the conversation stands with the matchmaker.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	default:
		return "idle"
	}
}

// EventKind identifies a conversation event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventWaiting
	EventMatched
	EventMessage
	EventDirect
	EventRelayed
	EventPartnerLeft
	EventClosed
)

// Event is what the UI renders.
type Event struct {
	Kind    EventKind
	Self    string
	Partner string
	Text    string
	At      time.Time
	Direct  bool
	Reason  wsclient.LeaveReason
	Err     error
}

const maxPendingSignals = 64

type peerEventKind int

const (
	peerOpened peerEventKind = iota
	peerText
	peerClosed
)

type peerEvent struct {
	peer *p2p.Peer
	kind peerEventKind
	text string
	at   time.Time
}

// Conversation drives one user's session against the matchmaking server.
// It joins as soon as the server greets it, negotiates a direct data channel
// when enabled, and rejoins after the partner leaves unless told otherwise.
type Conversation struct {
	cfg    *config.Client
	logger *slog.Logger

	client  *wsclient.Client
	handler *wsclient.Handler

	events     chan Event
	peerEvents chan peerEvent
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup

	mu        sync.Mutex
	self      string
	state     State
	sessionID string
	partnerID string
	peer      *p2p.Peer
	pending   []protocol.SignalPayload
}

// New creates a conversation. Call Start to connect.
func New(cfg *config.Client, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conversation{
		cfg:        cfg,
		logger:     logger,
		events:     make(chan Event, 64),
		peerEvents: make(chan peerEvent, 64),
		done:       make(chan struct{}),
	}
}

// Start connects to the server and begins processing events.
func (c *Conversation) Start(ctx context.Context) error {
	client := wsclient.NewClient(c.cfg.ServerURL)
	if err := client.Connect(ctx); err != nil {
		return WrapError("connect", err, c.cfg.ServerURL)
	}

	c.client = client
	c.handler = wsclient.NewHandler(client, c.logger)
	go c.handler.Start()

	c.wg.Add(1)
	go c.loop()
	return nil
}

// Events returns the stream of conversation events. It is closed once the
// conversation stops.
func (c *Conversation) Events() <-chan Event {
	return c.events
}

// State returns the current matchmaking state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send delivers text to the partner, directly when the data channel is open
// and through the server otherwise.
func (c *Conversation) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	state, sessionID, peer := c.state, c.sessionID, c.peer
	c.mu.Unlock()

	if c.client == nil {
		return ErrNotConnected
	}
	if state != StatePaired {
		return ErrNotPaired
	}

	if peer != nil && peer.IsOpen() {
		err := peer.SendText(text)
		if err == nil {
			return nil
		}
		c.logger.Debug("direct send failed, using relay", "error", err)
	}

	if err := c.client.Send(protocol.TypeChat, protocol.ChatRequest{SessionID: sessionID, Message: text}); err != nil {
		return NewError("send message", err)
	}
	return nil
}

// Skip leaves the current partner and goes back into matchmaking.
func (c *Conversation) Skip() error {
	if c.client == nil {
		return ErrNotConnected
	}

	c.mu.Lock()
	if c.state != StatePaired {
		c.mu.Unlock()
		return ErrNotPaired
	}
	sessionID := c.sessionID
	peer := c.resetLocked(StateWaiting)
	c.mu.Unlock()

	closePeer(peer)

	if err := c.client.Send(protocol.TypeSkip, protocol.SkipRequest{SessionID: sessionID}); err != nil {
		return NewError("skip", err)
	}
	return nil
}

// Close leaves the server and waits for the event loop to finish.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.client != nil {
			c.client.Close()
		}
	})
	c.wg.Wait()

	c.mu.Lock()
	peer := c.resetLocked(StateIdle)
	c.mu.Unlock()
	closePeer(peer)
}

func (c *Conversation) loop() {
	defer c.wg.Done()
	defer close(c.events)

	events := c.handler.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				select {
				case <-c.done:
					c.emit(Event{Kind: EventClosed})
				default:
					c.emit(Event{Kind: EventClosed, Err: ErrServerGone})
				}
				return
			}
			c.handle(ev)

		case ev := <-c.peerEvents:
			c.onPeerEvent(ev)

		case <-c.done:
			return
		}
	}
}

func (c *Conversation) handle(ev any) {
	switch ev := ev.(type) {
	case wsclient.Hello:
		c.mu.Lock()
		c.self = ev.ClientID
		c.mu.Unlock()
		c.emit(Event{Kind: EventConnected, Self: ev.ClientID})
		c.join()

	case wsclient.Waiting:
		c.mu.Lock()
		peer := c.resetLocked(StateWaiting)
		c.mu.Unlock()
		closePeer(peer)
		c.emit(Event{Kind: EventWaiting})

	case protocol.MatchedPayload:
		c.onMatched(ev)

	case protocol.SignalPayload:
		c.onSignal(ev)

	case protocol.ChatPayload:
		c.mu.Lock()
		fromPartner := c.state == StatePaired && ev.From == c.partnerID
		c.mu.Unlock()
		if !fromPartner {
			c.logger.Debug("dropping chat from stale partner", "from", ev.From)
			return
		}
		c.emit(Event{Kind: EventMessage, Partner: Nickname(ev.From), Text: ev.Message, At: time.Now()})

	case wsclient.PartnerLeft:
		c.mu.Lock()
		partner := c.partnerID
		peer := c.resetLocked(StateIdle)
		c.mu.Unlock()
		closePeer(peer)

		c.emit(Event{Kind: EventPartnerLeft, Partner: Nickname(partner), Reason: ev.Reason})
		if c.cfg.AutoRequeue {
			c.join()
		}
	}
}

func (c *Conversation) join() {
	if err := c.client.Send(protocol.TypeJoin, nil); err != nil {
		c.logger.Warn("join failed", "error", err)
	}
}

func (c *Conversation) onMatched(m protocol.MatchedPayload) {
	c.mu.Lock()
	old := c.resetLocked(StatePaired)
	c.sessionID = m.SessionID
	c.partnerID = m.PartnerID
	self := c.self

	// Signals that raced ahead of the match belong to this partner or nobody
	var early []protocol.SignalPayload
	for _, s := range c.pending {
		if s.From == m.PartnerID {
			early = append(early, s)
		}
	}
	c.pending = nil
	c.mu.Unlock()
	closePeer(old)

	c.emit(Event{Kind: EventMatched, Self: self, Partner: Nickname(m.PartnerID)})

	if !c.cfg.P2P {
		return
	}

	peer, err := c.newPeer(m.SessionID, m.PartnerID)
	if err != nil {
		c.logger.Warn("direct connection unavailable", "error", err)
		return
	}

	c.mu.Lock()
	if c.sessionID != m.SessionID {
		c.mu.Unlock()
		closePeer(peer)
		return
	}
	c.peer = peer
	c.mu.Unlock()

	for _, s := range early {
		if err := peer.HandleSignal(s.Data); err != nil {
			c.logger.Debug("early signal rejected", "error", err)
		}
	}

	if p2p.IsOfferer(self, m.PartnerID) {
		if err := peer.Offer(); err != nil {
			c.logger.Warn("offer failed", "error", err)
		}
	}
}

func (c *Conversation) onSignal(s protocol.SignalPayload) {
	c.mu.Lock()
	peer := c.peer
	if peer == nil || s.From != c.partnerID {
		if len(c.pending) < maxPendingSignals {
			c.pending = append(c.pending, s)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := peer.HandleSignal(s.Data); err != nil {
		c.logger.Debug("signal rejected", "from", s.From, "error", err)
	}
}

func (c *Conversation) onPeerEvent(ev peerEvent) {
	c.mu.Lock()
	current := ev.peer == c.peer
	partner := c.partnerID
	c.mu.Unlock()
	if !current {
		return
	}

	switch ev.kind {
	case peerOpened:
		c.emit(Event{Kind: EventDirect, Partner: Nickname(partner), Direct: true})
	case peerText:
		c.emit(Event{Kind: EventMessage, Partner: Nickname(partner), Text: ev.text, At: ev.at, Direct: true})
	case peerClosed:
		c.emit(Event{Kind: EventRelayed, Partner: Nickname(partner)})
	}
}

func (c *Conversation) newPeer(sessionID, partnerID string) (*p2p.Peer, error) {
	var peer *p2p.Peer

	signal := func(s p2p.Signal) error {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		return c.client.Send(protocol.TypeSignal, protocol.SignalRequest{
			SessionID: sessionID,
			To:        partnerID,
			Data:      data,
		})
	}

	handlers := p2p.Handlers{
		OnOpen: func() { c.pushPeerEvent(peerEvent{peer: peer, kind: peerOpened}) },
		OnText: func(text string, sentAt time.Time) {
			c.pushPeerEvent(peerEvent{peer: peer, kind: peerText, text: text, at: sentAt})
		},
		OnClosed: func() { c.pushPeerEvent(peerEvent{peer: peer, kind: peerClosed}) },
	}

	p, err := p2p.NewPeer(c.cfg, signal, handlers, c.logger)
	if err != nil {
		return nil, err
	}
	peer = p
	return p, nil
}

func (c *Conversation) pushPeerEvent(ev peerEvent) {
	select {
	case c.peerEvents <- ev:
	case <-c.done:
	}
}

// resetLocked clears pairing state and returns the peer to close.
// Callers hold c.mu.
func (c *Conversation) resetLocked(next State) *p2p.Peer {
	peer := c.peer
	c.peer = nil
	c.state = next
	c.sessionID = ""
	c.partnerID = ""
	return peer
}

func (c *Conversation) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func closePeer(peer *p2p.Peer) {
	if peer == nil {
		return
	}
	_ = peer.Close()
}
