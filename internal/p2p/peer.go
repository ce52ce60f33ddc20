package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Strangers/internal/config"
)

// ChannelLabel names the chat data channel.
const ChannelLabel = "chat"

// Signal types carried in the opaque signal payload.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

var (
	ErrChannelNotOpen   = errors.New("data channel not open")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
)

// Signal is the negotiation data exchanged through the server relay.
type Signal struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// SignalFunc sends negotiation data to the partner.
type SignalFunc func(Signal) error

// Handlers are called from pion goroutines.
type Handlers struct {
	OnOpen   func()
	OnText   func(text string, sentAt time.Time)
	OnClosed func()
}

// IsOfferer reports whether self creates the offer when paired with partner.
// Exactly one side of a pair gets true.
func IsOfferer(self, partner string) bool {
	return self < partner
}

// Peer is one side of a WebRTC chat data channel.
type Peer struct {
	pc       *pion.PeerConnection
	signal   SignalFunc
	handlers Handlers
	logger   *slog.Logger

	mu        sync.Mutex
	dc        *pion.DataChannel
	open      bool
	remoteSet bool
	pending   []pion.ICECandidateInit
	closeOnce sync.Once
}

// NewPeer creates a peer connection using the ICE servers from cfg.
func NewPeer(cfg *config.Client, signal SignalFunc, handlers Handlers, logger *slog.Logger) (*Peer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:       pc,
		signal:   signal,
		handlers: handlers,
		logger:   logger,
	}
	p.setupHandlers()
	return p, nil
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := p.signal(Signal{Type: SignalCandidate, Candidate: &init}); err != nil {
			p.logger.Debug("send candidate", "error", err)
		}
	})

	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.logger.Debug("peer connection state", "state", state.String())
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			p.markClosed()
		}
	})

	// The answering side receives the channel from the offerer
	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			return
		}
		p.attach(dc)
	})
}

// attach wires a data channel's events.
func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		p.open = true
		p.mu.Unlock()
		if p.handlers.OnOpen != nil {
			p.handlers.OnOpen()
		}
	})

	dc.OnClose(p.markClosed)

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		frame, err := DecodeFrame(msg.Data)
		if err != nil {
			p.logger.Warn("bad data channel frame", "error", err)
			return
		}

		switch frame.Type {
		case MessageTypeText:
			var text TextPayload
			if err := frame.DecodePayload(&text); err != nil {
				p.logger.Warn("bad text payload", "error", err)
				return
			}
			if p.handlers.OnText != nil {
				p.handlers.OnText(text.Text, time.UnixMilli(text.SentAt))
			}
		case MessageTypeBye:
			p.markClosed()
		}
	})
}

func (p *Peer) markClosed() {
	p.mu.Lock()
	wasOpen := p.open
	p.open = false
	p.mu.Unlock()

	if wasOpen && p.handlers.OnClosed != nil {
		p.handlers.OnClosed()
	}
}

// Offer creates the chat data channel and sends an SDP offer to the partner.
func (p *Peer) Offer() error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.attach(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return p.signal(Signal{Type: SignalOffer, SDP: p.pc.LocalDescription().SDP})
}

// HandleSignal applies negotiation data relayed from the partner.
func (p *Peer) HandleSignal(raw json.RawMessage) error {
	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return fmt.Errorf("parse signal: %w", err)
	}

	switch sig.Type {
	case SignalOffer:
		return p.handleOffer(sig.SDP)
	case SignalAnswer:
		return p.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP})
	case SignalCandidate:
		if sig.Candidate == nil {
			return fmt.Errorf("%w: candidate without body", ErrUnexpectedSignal)
		}
		return p.addCandidate(*sig.Candidate)
	default:
		return fmt.Errorf("%w: %q", ErrUnexpectedSignal, sig.Type)
	}
}

func (p *Peer) handleOffer(sdp string) error {
	if err := p.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return p.signal(Signal{Type: SignalAnswer, SDP: p.pc.LocalDescription().SDP})
}

// setRemote applies the remote description and flushes buffered candidates.
func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.logger.Debug("add buffered candidate", "error", err)
		}
	}
	return nil
}

// addCandidate buffers candidates that arrive before the remote description.
func (p *Peer) addCandidate(c pion.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

// IsOpen reports whether chat can go over the data channel.
func (p *Peer) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// SendText sends one chat line over the data channel.
func (p *Peer) SendText(text string) error {
	p.mu.Lock()
	dc, open := p.dc, p.open
	p.mu.Unlock()

	if !open || dc == nil {
		return ErrChannelNotOpen
	}

	data, err := EncodeText(text, time.Now())
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// Close says goodbye on an open channel and tears the connection down.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		dc, open := p.dc, p.open
		p.open = false
		p.mu.Unlock()

		if open && dc != nil {
			if data, encErr := EncodeBye(); encErr == nil {
				_ = dc.Send(data)
			}
			dc.Close()
		}
		err = p.pc.Close()
	})
	return err
}
