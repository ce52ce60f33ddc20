package wsclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
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
	"github.com/BioHazard786/Strangers/internal/signaling"
)

func startServer(t *testing.T) string {
	t.Helper()

	hub := signaling.NewHub(matchmaking.New())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
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
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url string) (*Client, *Handler, string) {
	t.Helper()

	c := NewClient(url)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)

	h := NewHandler(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Start()

	hello := expect[Hello](t, h)
	require.NotEmpty(t, hello.ClientID)
	return c, h, hello.ClientID
}

// expect reads the next event and requires it to be a T.
func expect[T any](t *testing.T, h *Handler) T {
	t.Helper()
	select {
	case ev, ok := <-h.Events():
		require.True(t, ok, "event stream closed")
		v, ok := ev.(T)
		require.True(t, ok, "unexpected event %T", ev)
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func expectClosed(t *testing.T, h *Handler) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-h.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("event stream not closed")
		}
	}
}

func TestClient_FullConversation(t *testing.T) {
	url := startServer(t)
	ca, ha, idA := connect(t, url)
	cb, hb, idB := connect(t, url)

	require.NoError(t, ca.Send(protocol.TypeJoin, nil))
	expect[Waiting](t, ha)
	require.NoError(t, cb.Send(protocol.TypeJoin, nil))

	ma := expect[protocol.MatchedPayload](t, ha)
	mb := expect[protocol.MatchedPayload](t, hb)
	assert.Equal(t, idB, ma.PartnerID)
	assert.Equal(t, idA, mb.PartnerID)
	assert.Equal(t, ma.SessionID, mb.SessionID)

	require.NoError(t, ca.Send(protocol.TypeChat, protocol.ChatRequest{SessionID: ma.SessionID, Message: "hi"}))
	assert.Equal(t, protocol.ChatPayload{From: idA, Message: "hi"}, expect[protocol.ChatPayload](t, hb))

	require.NoError(t, cb.Send(protocol.TypeSignal, protocol.SignalRequest{
		SessionID: mb.SessionID,
		To:        idA,
		Data:      json.RawMessage(`{"type":"candidate"}`),
	}))
	sig := expect[protocol.SignalPayload](t, ha)
	assert.Equal(t, idB, sig.From)
	assert.JSONEq(t, `{"type":"candidate"}`, string(sig.Data))

	require.NoError(t, cb.Send(protocol.TypeSkip, protocol.SkipRequest{SessionID: mb.SessionID}))
	assert.Equal(t, PartnerLeft{Reason: PartnerSkipped}, expect[PartnerLeft](t, ha))
	expect[Waiting](t, hb)

	cb.Close()
	expectClosed(t, hb)
}

func TestClient_PartnerDisconnect(t *testing.T) {
	url := startServer(t)
	ca, ha, _ := connect(t, url)
	cb, hb, _ := connect(t, url)

	require.NoError(t, ca.Send(protocol.TypeJoin, nil))
	expect[Waiting](t, ha)
	require.NoError(t, cb.Send(protocol.TypeJoin, nil))
	expect[protocol.MatchedPayload](t, ha)
	expect[protocol.MatchedPayload](t, hb)

	cb.Close()
	assert.Equal(t, PartnerDisconnected, expect[PartnerLeft](t, ha).Reason)
}

func TestClient_SendAfterClose(t *testing.T) {
	url := startServer(t)
	c, _, _ := connect(t, url)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send(protocol.TypeJoin, nil), ErrClosed)
}

func TestClient_ConnectFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, c.Connect(ctx))
}
