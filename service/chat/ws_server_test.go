package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	usermodel "DMChat/module/user/model"
	"DMChat/service/presence"
	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenAuth map[string]string

func (a tokenAuth) Authenticate(_ context.Context, token string) (*usermodel.User, string, error) {
	id, ok := a[token]
	if !ok {
		return nil, "", errs.ErrTokenInvalid.WrapMsg("unknown token")
	}
	return &usermodel.User{ID: id}, "s-" + id, nil
}

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	return newTestGatewayConf(t, ConnConf{PongWait: 5 * time.Second})
}

func newTestGatewayConf(t *testing.T, conf ConnConf) (*Gateway, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := presence.NewBroadcaster(presence.NewRegistry())
	g := NewGateway(b, tokenAuth{"ta": "a", "tb": "b"}, nil, conf, nil)
	r := gin.New()
	r.GET("/ws", g.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		g.Shutdown()
		srv.Close()
	})
	return g, srv
}

func dial(t *testing.T, srv *httptest.Server, token string, viaHeader bool) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	hdr := http.Header{}
	if viaHeader {
		hdr.Set("token", token)
	} else {
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, hdr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads frames until one of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == typ {
			return f.Data
		}
	}
}

func online(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	var ids []string
	require.NoError(t, json.Unmarshal(next(t, conn, presence.EventPresenceUpdate), &ids))
	return ids
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}

func TestGatewayPresenceLifecycle(t *testing.T) {
	g, srv := newTestGateway(t)

	ca := dial(t, srv, "ta", false)
	assert.Equal(t, []string{"a"}, online(t, ca))

	cb := dial(t, srv, "tb", true)
	assert.Equal(t, []string{"a", "b"}, online(t, cb))
	assert.Equal(t, []string{"a", "b"}, online(t, ca))

	require.True(t, g.b.PushTo("b", presence.Event{Type: presence.EventMessageNew, Data: map[string]any{"text": "hi"}}))
	var msg map[string]any
	require.NoError(t, json.Unmarshal(next(t, cb, presence.EventMessageNew), &msg))
	assert.Equal(t, "hi", msg["text"])

	require.NoError(t, cb.Close())
	assert.Equal(t, []string{"a"}, online(t, ca))
	waitFor(t, func() bool { return g.Conns().Len() == 1 })
}

func TestGatewayRejectsMissingIdentity(t *testing.T) {
	_, srv := newTestGateway(t)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(u+"?token=bogus", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayReconnectSupersedes(t *testing.T) {
	g, srv := newTestGateway(t)

	first := dial(t, srv, "ta", false)
	online(t, first)
	second := dial(t, srv, "ta", false)
	assert.Equal(t, []string{"a"}, online(t, second))

	// the superseded socket is closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	waitFor(t, func() bool { return g.Conns().Len() == 1 })
	assert.Equal(t, []string{"a"}, g.b.Registry().OnlineUserIDs())
}

func TestGatewayPingFrame(t *testing.T) {
	_, srv := newTestGateway(t)
	c := dial(t, srv, "ta", false)
	online(t, c)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	next(t, c, FramePong)
}

func TestClientPushOrderingAndLimits(t *testing.T) {
	c := NewClient("c1", "a", nil, ConnConf{SendQueueSize: 2}, zap.NewNop())

	require.NoError(t, c.Push(presence.Event{Type: presence.EventPresenceUpdate, Version: 5, Data: []string{"a"}}))
	// an older snapshot racing behind a newer one is dropped
	require.NoError(t, c.Push(presence.Event{Type: presence.EventPresenceUpdate, Version: 4, Data: []string{}}))
	assert.Len(t, c.send, 1)

	require.NoError(t, c.Push(presence.Event{Type: presence.EventMessageNew, Data: "x"}))
	err := c.Push(presence.Event{Type: presence.EventMessageNew, Data: "y"})
	assert.ErrorIs(t, err, presence.ErrQueueFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Push(presence.Event{Type: presence.EventMessageNew}), presence.ErrHandleClosed)
}

func TestGatewayDropsSilentPeer(t *testing.T) {
	g, srv := newTestGatewayConf(t, ConnConf{PongWait: 400 * time.Millisecond, PingInterval: 100 * time.Millisecond})

	// never read: gorilla only answers pings from inside ReadMessage
	dial(t, srv, "ta", false)
	waitFor(t, func() bool { return g.b.Registry().IsOnline("a") })

	waitFor(t, func() bool { return !g.b.Registry().IsOnline("a") })
	waitFor(t, func() bool { return g.Conns().Len() == 0 })
}

func TestGatewayKickMatchesSession(t *testing.T) {
	g, srv := newTestGateway(t)
	c := dial(t, srv, "ta", false)
	online(t, c)

	assert.False(t, g.b.Kick("a", "s-other"))
	assert.True(t, g.b.Registry().IsOnline("a"))

	assert.True(t, g.b.Kick("a", "s-a"))
	assert.False(t, g.b.Registry().IsOnline("a"))
	waitFor(t, func() bool { return g.Conns().Len() == 0 })
}
