package p2p

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Strangers/internal/config"
)

type recorder struct {
	mu   sync.Mutex
	sigs []Signal
}

func (r *recorder) send(s Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sigs = append(r.sigs, s)
	return nil
}

func (r *recorder) find(t *testing.T, typ string) Signal {
	t.Helper()
	var found Signal
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, s := range r.sigs {
			if s.Type == typ {
				found = s
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return found
}

func newTestPeer(t *testing.T, rec *recorder) *Peer {
	t.Helper()
	p, err := NewPeer(&config.Client{}, rec.send, Handlers{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func encode(t *testing.T, s Signal) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return b
}

func TestIsOfferer(t *testing.T) {
	assert.True(t, IsOfferer("a", "b"))
	assert.False(t, IsOfferer("b", "a"))
	assert.NotEqual(t, IsOfferer("x1", "x2"), IsOfferer("x2", "x1"))
}

func TestTextFrameRoundTrip(t *testing.T) {
	sent := time.UnixMilli(1700000000123)
	data, err := EncodeText("hello there", sent)
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeText, frame.Type)

	var text TextPayload
	require.NoError(t, frame.DecodePayload(&text))
	assert.Equal(t, "hello there", text.Text)
	assert.Equal(t, sent.UnixMilli(), text.SentAt)
}

func TestByeFrame(t *testing.T) {
	data, err := EncodeBye()
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeBye, frame.Type)
}

func TestDecodeFrame_Garbage(t *testing.T) {
	_, err := DecodeFrame([]byte{0xc1})
	assert.Error(t, err)

	// A frame with an unknown type still decodes; callers ignore it.
	data, err := msgpack.Marshal(Message{Type: "ping"})
	require.NoError(t, err)
	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "ping", frame.Type)
}

func TestInterfaceNeedsRelay(t *testing.T) {
	ipNet := func(cidr string) net.Addr {
		ip, n, err := net.ParseCIDR(cidr)
		require.NoError(t, err)
		n.IP = ip
		return n
	}

	tests := []struct {
		name  string
		iface string
		addrs []net.Addr
		want  bool
	}{
		{"plain ethernet", "eth0", []net.Addr{ipNet("192.168.1.20/24")}, false},
		{"wireguard", "wg0", nil, true},
		{"tunnel upper case", "TUN1", nil, true},
		{"cgnat address", "en0", []net.Addr{ipNet("100.72.1.9/10")}, true},
		{"just outside cgnat", "en0", []net.Addr{ipNet("100.128.0.1/16")}, false},
		{"ip addr form", "en1", []net.Addr{&net.IPAddr{IP: net.ParseIP("100.64.0.1")}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, interfaceNeedsRelay(tt.iface, tt.addrs))
		})
	}
}

func TestPeer_OfferAnswer(t *testing.T) {
	var recA, recB recorder
	a := newTestPeer(t, &recA)
	b := newTestPeer(t, &recB)

	require.NoError(t, a.Offer())
	offer := recA.find(t, SignalOffer)
	assert.NotEmpty(t, offer.SDP)

	require.NoError(t, b.HandleSignal(encode(t, offer)))
	answer := recB.find(t, SignalAnswer)
	assert.NotEmpty(t, answer.SDP)

	require.NoError(t, a.HandleSignal(encode(t, answer)))
	assert.False(t, a.IsOpen())
}

func TestPeer_BuffersEarlyCandidates(t *testing.T) {
	var rec recorder
	p := newTestPeer(t, &rec)

	mid := "0"
	early := Signal{Type: SignalCandidate, Candidate: &pion.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
		SDPMid:    &mid,
	}}
	require.NoError(t, p.HandleSignal(encode(t, early)))

	p.mu.Lock()
	assert.Len(t, p.pending, 1)
	p.mu.Unlock()
}

func TestPeer_RejectsBadSignals(t *testing.T) {
	var rec recorder
	p := newTestPeer(t, &rec)

	assert.Error(t, p.HandleSignal(json.RawMessage(`not json`)))
	assert.ErrorIs(t, p.HandleSignal(json.RawMessage(`{"type":"renegotiate"}`)), ErrUnexpectedSignal)
	assert.ErrorIs(t, p.HandleSignal(json.RawMessage(`{"type":"candidate"}`)), ErrUnexpectedSignal)
}

func TestPeer_SendBeforeOpen(t *testing.T) {
	var rec recorder
	p := newTestPeer(t, &rec)

	assert.ErrorIs(t, p.SendText("hi"), ErrChannelNotOpen)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
