package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Strangers/internal/config"
	"github.com/BioHazard786/Strangers/internal/matchmaking"
	"github.com/BioHazard786/Strangers/internal/signaling"
	"github.com/BioHazard786/Strangers/internal/wsclient"
)

func startServer(t *testing.T) (string, *matchmaking.Engine) {
	t.Helper()

	engine := matchmaking.New()
	hub := signaling.NewHub(engine)
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
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", engine
}

func start(t *testing.T, url string, requeue bool) *Conversation {
	t.Helper()

	c := New(&config.Client{ServerURL: url, AutoRequeue: requeue}, nil)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

// next returns the next event of the given kind, skipping others.
func next(t *testing.T, c *Conversation, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "event stream closed")
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %d", kind)
			return Event{}
		}
	}
}

func TestConversation_PairAndChat(t *testing.T) {
	url, _ := startServer(t)
	a := start(t, url, true)
	next(t, a, EventWaiting)
	b := start(t, url, true)

	ma := next(t, a, EventMatched)
	mb := next(t, b, EventMatched)
	assert.Equal(t, Nickname(mb.Self), ma.Partner)
	assert.Equal(t, Nickname(ma.Self), mb.Partner)
	assert.Equal(t, StatePaired, a.State())

	require.NoError(t, a.Send("  hello stranger  "))
	msg := next(t, b, EventMessage)
	assert.Equal(t, "hello stranger", msg.Text)
	assert.Equal(t, mb.Partner, msg.Partner)
	assert.False(t, msg.Direct)

	assert.ErrorIs(t, a.Send("   "), ErrEmptyMessage)
}

func TestConversation_SkipRequeuesBoth(t *testing.T) {
	url, _ := startServer(t)
	a := start(t, url, true)
	next(t, a, EventWaiting)
	b := start(t, url, true)
	next(t, a, EventMatched)
	next(t, b, EventMatched)

	require.NoError(t, b.Skip())

	left := next(t, a, EventPartnerLeft)
	assert.Equal(t, wsclient.PartnerSkipped, left.Reason)

	// b went back to the waiting slot, a rejoined and finds it there
	next(t, a, EventMatched)
	next(t, b, EventMatched)
}

func TestConversation_NoRequeue(t *testing.T) {
	url, engine := startServer(t)
	a := start(t, url, false)
	next(t, a, EventWaiting)
	b := start(t, url, true)
	next(t, a, EventMatched)
	next(t, b, EventMatched)

	b.Close()

	left := next(t, a, EventPartnerLeft)
	assert.Equal(t, wsclient.PartnerDisconnected, left.Reason)
	assert.Equal(t, StateIdle, a.State())

	require.Eventually(t, func() bool {
		snap := engine.Snapshot()
		return snap.Clients == 1 && snap.Waiting == "" && len(snap.Sessions) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConversation_NotPaired(t *testing.T) {
	url, _ := startServer(t)
	a := start(t, url, true)
	next(t, a, EventWaiting)

	assert.ErrorIs(t, a.Send("anyone?"), ErrNotPaired)
	assert.ErrorIs(t, a.Skip(), ErrNotPaired)
}

func TestConversation_NotStarted(t *testing.T) {
	c := New(&config.Client{ServerURL: "ws://127.0.0.1:1/ws"}, nil)
	assert.ErrorIs(t, c.Skip(), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Start(ctx)
	require.Error(t, err)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, "connect", chatErr.Op)
	c.Close()
}

func TestConversation_CloseEndsEvents(t *testing.T) {
	url, _ := startServer(t)
	a := start(t, url, true)
	next(t, a, EventWaiting)

	a.Close()
	for ev := range a.Events() {
		assert.NoError(t, ev.Err)
	}
	assert.Equal(t, StateIdle, a.State())
}

func TestNickname(t *testing.T) {
	assert.Equal(t, Nickname("abc"), Nickname("abc"))
	assert.Equal(t, "stranger", Nickname(""))

	parts := strings.Split(Nickname("7f1c2d3e-0000-4000-8000-000000000000"), "-")
	require.Len(t, parts, 2)
	assert.Contains(t, adjectives, parts[0])
	assert.Contains(t, animals, parts[1])
}

func TestError(t *testing.T) {
	err := WrapError("connect", ErrServerGone, "ws://x/ws")
	assert.Equal(t, "connect: server connection lost (ws://x/ws)", err.Error())
	assert.ErrorIs(t, err, ErrServerGone)
	assert.Equal(t, "skip: no partner yet", NewError("skip", ErrNotPaired).Error())
}
