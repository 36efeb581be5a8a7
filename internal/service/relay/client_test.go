package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

// fakeRelay answers subscribe and history frames. Each connection is handed
// to onConn after the subscribe frame arrives.
func fakeRelay(t *testing.T, onConn func(n int, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub frame
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != frameSubscribe {
			return
		}
		onConn(int(conns.Add(1)), conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientDeliversMessagesAndEdits(t *testing.T) {
	srv := fakeRelay(t, func(_ int, conn *websocket.Conn) {
		_ = conn.WriteJSON(frame{Type: frameMessage, ID: "10", Text: "EUR/USD BUY", Date: "2026-10-14T14:00:00Z"})
		_ = conn.WriteJSON(frame{Type: frameEdit, ID: "10", Text: "EUR/USD SELL"})
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	got := make(chan models.Message, 4)
	c := New(Config{URL: wsURL(srv), Channel: "signals"}, nil)
	require.NoError(t, c.Start(context.Background(), func(_ context.Context, m models.Message) { got <- m }))
	defer c.Close()

	first := <-got
	assert.Equal(t, "10", first.ID)
	assert.Equal(t, "EUR/USD BUY", first.Text)
	assert.False(t, first.Edited)
	assert.Equal(t, "relay", first.Source)
	assert.Equal(t, time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC), first.SentAt)

	second := <-got
	assert.True(t, second.Edited)
	assert.Equal(t, "EUR/USD SELL", second.Text)
}

func TestClientRecent(t *testing.T) {
	srv := fakeRelay(t, func(_ int, conn *websocket.Conn) {
		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Type != frameHistory {
				continue
			}
			_ = conn.WriteJSON(frame{
				Type:      frameHistory,
				RequestID: req.RequestID,
				Messages: []frame{
					{ID: "3", Text: "newest"},
					{Text: "no id"},
					{ID: "1", Text: "oldest"},
				},
			})
		}
	})
	defer srv.Close()

	c := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, c.Start(context.Background(), func(context.Context, models.Message) {}))
	defer c.Close()

	msgs, err := c.Recent(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", msgs[0].ID)
	assert.Equal(t, "1", msgs[1].ID)
	assert.False(t, msgs[0].Edited)
}

func TestClientReconnects(t *testing.T) {
	srv := fakeRelay(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			return
		}
		_ = conn.WriteJSON(frame{Type: frameMessage, ID: "after-reconnect", Text: "hi"})
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	got := make(chan models.Message, 1)
	c := New(Config{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond}, nil)
	require.NoError(t, c.Start(context.Background(), func(_ context.Context, m models.Message) { got <- m }))
	defer c.Close()

	select {
	case m := <-got:
		assert.Equal(t, "after-reconnect", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message after reconnect")
	}
}

func TestClientStartFailsWhenUnreachable(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	require.Error(t, c.Start(context.Background(), func(context.Context, models.Message) {}))
	require.NoError(t, c.Close())
}

func TestRecentWithoutConnection(t *testing.T) {
	_, err := New(Config{}, nil).Recent(context.Background(), 5)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestClientSendsEscapedToken(t *testing.T) {
	tokens := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case tokens <- r.URL.Query().Get("token"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := New(Config{URL: wsURL(srv) + "/ws?v=2", Token: "a&b=c d+"}, nil)
	require.NoError(t, c.Start(context.Background(), func(context.Context, models.Message) {}))
	defer c.Close()

	assert.Equal(t, "a&b=c d+", <-tokens)
}

func TestDialURL(t *testing.T) {
	u, err := dialURL("ws://relay:8080/ws?v=2", "s3cr&t")
	require.NoError(t, err)
	assert.Equal(t, "ws://relay:8080/ws?token=s3cr%26t&v=2", u)

	u, err = dialURL("ws://relay:8080/ws", "")
	require.NoError(t, err)
	assert.Equal(t, "ws://relay:8080/ws", u)

	_, err = dialURL("://bad", "x")
	require.Error(t, err)
}
