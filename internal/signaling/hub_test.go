package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Strangers/internal/matchmaking"
	"github.com/BioHazard786/Strangers/internal/protocol"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(matchmaking.New())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn)
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

type testPeer struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

// dial connects to srv and consumes the hello frame.
func dial(t *testing.T, srv *httptest.Server) *testPeer {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &testPeer{t: t, conn: conn}
	msg := p.read()
	require.Equal(t, protocol.TypeHello, msg.Type)
	var hello protocol.HelloPayload
	require.NoError(t, msg.Decode(&hello))
	require.NotEmpty(t, hello.ClientID)
	p.id = hello.ClientID
	return p
}

func (p *testPeer) send(msgType string, payload any) {
	p.t.Helper()
	msg, err := protocol.New(msgType, payload)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

func (p *testPeer) read() *protocol.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg protocol.Message
	require.NoError(p.t, p.conn.ReadJSON(&msg))
	return &msg
}

// expectSilence asserts that nothing arrives within a short window.
func (p *testPeer) expectSilence() {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var msg protocol.Message
	err := p.conn.ReadJSON(&msg)
	require.Error(p.t, err, "unexpected message %q", msg.Type)
}

func matchPeers(t *testing.T, a, b *testPeer) string {
	t.Helper()

	a.send(protocol.TypeJoin, nil)
	assert.Equal(t, protocol.TypeWaiting, a.read().Type)

	b.send(protocol.TypeJoin, nil)

	var ma, mb protocol.MatchedPayload
	msgB := b.read()
	require.Equal(t, protocol.TypeMatched, msgB.Type)
	require.NoError(t, msgB.Decode(&mb))
	msgA := a.read()
	require.Equal(t, protocol.TypeMatched, msgA.Type)
	require.NoError(t, msgA.Decode(&ma))

	assert.Equal(t, ma.SessionID, mb.SessionID)
	assert.Equal(t, b.id, ma.PartnerID)
	assert.Equal(t, a.id, mb.PartnerID)
	assert.Equal(t, string(matchmaking.NewSessionID(matchmaking.ClientID(a.id), matchmaking.ClientID(b.id))), ma.SessionID)
	return ma.SessionID
}

func TestHub_MatchAndChat(t *testing.T) {
	_, srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)

	sid := matchPeers(t, a, b)

	a.send(protocol.TypeChat, protocol.ChatRequest{SessionID: sid, Message: "hi"})
	msg := b.read()
	require.Equal(t, protocol.TypeChat, msg.Type)
	var chat protocol.ChatPayload
	require.NoError(t, msg.Decode(&chat))
	assert.Equal(t, protocol.ChatPayload{From: a.id, Message: "hi"}, chat)
	a.expectSilence()
}

func TestHub_SignalRelayedOpaquely(t *testing.T) {
	_, srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	sid := matchPeers(t, a, b)

	data := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	b.send(protocol.TypeSignal, protocol.SignalRequest{SessionID: sid, To: a.id, Data: data})

	msg := a.read()
	require.Equal(t, protocol.TypeSignal, msg.Type)
	var sig protocol.SignalPayload
	require.NoError(t, msg.Decode(&sig))
	assert.Equal(t, b.id, sig.From)
	assert.JSONEq(t, string(data), string(sig.Data))
}

func TestHub_Skip(t *testing.T) {
	_, srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	sid := matchPeers(t, a, b)

	a.send(protocol.TypeSkip, protocol.SkipRequest{SessionID: sid})

	assert.Equal(t, protocol.TypePartnerSkipped, b.read().Type)
	assert.Equal(t, protocol.TypeWaiting, a.read().Type)
}

func TestHub_DisconnectNotifiesPartner(t *testing.T) {
	hub, srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)
	matchPeers(t, a, b)

	require.NoError(t, b.conn.Close())

	assert.Equal(t, protocol.TypePartnerDisconnected, a.read().Type)
	require.Eventually(t, func() bool {
		snap := hub.Engine().Snapshot()
		return snap.Clients == 1 && len(snap.Sessions) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_MalformedFramesAreDropped(t *testing.T) {
	_, srv := newTestServer(t)
	a := dial(t, srv)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	a.send("bogus", nil)
	a.send(protocol.TypeChat, nil)
	a.send(protocol.TypeSkip, protocol.SkipRequest{})
	a.send(protocol.TypeSignal, protocol.SignalRequest{SessionID: "x"})
	a.send(protocol.TypeChat, protocol.ChatRequest{SessionID: "bogus-id", Message: "hi"})

	// Frames are handled in order, so the first reply must answer the join:
	// none of the frames above produced anything and the connection survived.
	a.send(protocol.TypeJoin, nil)
	assert.Equal(t, protocol.TypeWaiting, a.read().Type)
}

func TestHub_StopClosesConnections(t *testing.T) {
	hub := NewHub(matchmaking.New())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn)
	}))
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	matchPeers(t, a, b)
	cancel()
	<-stopped

	// Both write pumps send a close frame instead of waiting for a ping tick.
	for _, p := range []*testPeer{a, b} {
		require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var err error
		for err == nil {
			_, _, err = p.conn.ReadMessage()
		}
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
	}

	snap := hub.Engine().Snapshot()
	assert.Zero(t, snap.Clients)
	assert.Empty(t, snap.Sessions)
}

func TestEncodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		event    matchmaking.Event
		wantType string
		wantJSON string
	}{
		{
			name:     "waiting",
			event:    matchmaking.Event{Type: matchmaking.EventWaiting},
			wantType: protocol.TypeWaiting,
		},
		{
			name:     "matched",
			event:    matchmaking.Event{Type: matchmaking.EventMatched, SessionID: "a#b", PartnerID: "b"},
			wantType: protocol.TypeMatched,
			wantJSON: `{"sessionId":"a#b","partnerId":"b"}`,
		},
		{
			name:     "signal json",
			event:    matchmaking.Event{Type: matchmaking.EventSignal, From: "a", Data: []byte(`{"k":1}`)},
			wantType: protocol.TypeSignal,
			wantJSON: `{"from":"a","data":{"k":1}}`,
		},
		{
			name:     "signal raw bytes",
			event:    matchmaking.Event{Type: matchmaking.EventSignal, From: "a", Data: []byte("not json")},
			wantType: protocol.TypeSignal,
			wantJSON: `{"from":"a","data":"not json"}`,
		},
		{
			name:     "signal empty",
			event:    matchmaking.Event{Type: matchmaking.EventSignal, From: "a"},
			wantType: protocol.TypeSignal,
			wantJSON: `{"from":"a","data":null}`,
		},
		{
			name:     "chat",
			event:    matchmaking.Event{Type: matchmaking.EventChatMessage, From: "a", Message: "hi"},
			wantType: protocol.TypeChat,
			wantJSON: `{"from":"a","message":"hi"}`,
		},
		{
			name:     "partner skipped",
			event:    matchmaking.Event{Type: matchmaking.EventPartnerSkipped},
			wantType: protocol.TypePartnerSkipped,
		},
		{
			name:     "partner disconnected",
			event:    matchmaking.Event{Type: matchmaking.EventPartnerDisconnected},
			wantType: protocol.TypePartnerDisconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := encodeEvent(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
			if tt.wantJSON == "" {
				assert.Empty(t, msg.Payload)
				return
			}
			assert.JSONEq(t, tt.wantJSON, string(msg.Payload))
		})
	}

	_, err := encodeEvent(matchmaking.Event{Type: "nope"})
	assert.Error(t, err)
}
