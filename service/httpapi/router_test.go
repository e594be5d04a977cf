package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"DMChat/global/config"
	"DMChat/module/chat"
	"DMChat/module/chat/message"
	chatservice "DMChat/module/chat/service"
	"DMChat/module/user"
	userservice "DMChat/module/user/service"
	userstore "DMChat/module/user/store"
	"DMChat/service/assets"
	servicechat "DMChat/service/chat"
	"DMChat/service/metrics"
	"DMChat/service/presence"
	"DMChat/service/storage"
	"DMChat/tools/ids"
	jwtlib "DMChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T, health func(context.Context) error) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := presence.NewBroadcaster(presence.NewRegistry())
	assetStore := assets.NewMemStore()
	users := userservice.New(userstore.NewMemStore(), storage.NewMemSessionStore(), assetStore,
		jwtlib.Options{Secret: []byte("router-test"), TTL: time.Hour}, b, nil)
	msgs := message.NewMemStore(ids.NewGenerator(3))
	router := chatservice.NewRouter(msgs, users, b, assetStore)

	gw := servicechat.NewGateway(b, users, nil, servicechat.ConnConf{}, nil)
	engine := NewEngine(Deps{
		Conf:    config.HTTPConfig{MaxBodySize: 1 << 20},
		Auth:    users,
		Users:   user.NewHandler(users),
		Chat:    chat.NewHandler(router, chatservice.NewAggregator(msgs), users),
		Gateway: gw,
		Assets:  assetStore,
		Metrics: metrics.New(),
		Health:  health,
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		gw.Shutdown()
		srv.Close()
	})
	return &api{t: t, srv: srv}
}

func (a *api) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (a *api) signup(name, email string) (id, token string) {
	a.t.Helper()
	code, out := a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": name, "email": email, "password": "secret-" + name, "bio": "hello",
	})
	require.Equal(a.t, http.StatusOK, code, out)
	require.Equal(a.t, true, out["success"])
	data := out["userData"].(map[string]any)
	assert.NotContains(a.t, data, "password")
	return data["_id"].(string), out["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t, nil)
	aliceID, aliceTok := a.signup("Alice", "alice@example.com")

	code, out := a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Dup", "email": "ALICE@example.com", "password": "x", "bio": "b",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Account already exists", out["message"])

	code, out = a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["success"])

	code, out = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid credentials", out["message"])

	code, out = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "secret-Alice"})
	require.Equal(t, http.StatusOK, code)
	loginTok := out["token"].(string)

	code, out = a.do(http.MethodGet, "/api/auth/check-auth", aliceTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, aliceID, out["user"].(map[string]any)["_id"])

	code, _ = a.do(http.MethodGet, "/api/auth/check-auth", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, out = a.do(http.MethodPut, "/api/auth/update-profile", aliceTok, map[string]string{"bio": "updated"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "updated", out["user"].(map[string]any)["bio"])

	code, _ = a.do(http.MethodPost, "/api/auth/logout", aliceTok, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/api/auth/check-auth", aliceTok, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// other sessions survive
	code, _ = a.do(http.MethodGet, "/api/auth/check-auth", loginTok, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMessageFlow(t *testing.T) {
	a := newAPI(t, nil)
	aliceID, aliceTok := a.signup("Alice", "alice@example.com")
	bobID, bobTok := a.signup("Bob", "bob@example.com")
	carolID, _ := a.signup("Carol", "carol@example.com")

	for _, txt := range []string{"one", "two", "three"} {
		code, out := a.do(http.MethodPost, "/api/messages/send/"+bobID, aliceTok, map[string]string{"text": txt})
		require.Equal(t, http.StatusOK, code, out)
		msg := out["newMessage"].(map[string]any)
		assert.Equal(t, aliceID, msg["senderId"])
		assert.Equal(t, false, msg["seen"])
	}

	code, out := a.do(http.MethodPost, "/api/messages/send/"+bobID, aliceTok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodPost, "/api/messages/send/unknown", aliceTok, map[string]string{"text": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, out = a.do(http.MethodGet, "/api/messages/users", bobTok, nil)
	require.Equal(t, http.StatusOK, code)
	users := out["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, aliceID, users[0].(map[string]any)["_id"])
	assert.Equal(t, carolID, users[1].(map[string]any)["_id"])
	assert.Equal(t, map[string]any{aliceID: float64(3)}, out["unseenMessages"])
	assert.Contains(t, out["lastMessageTime"], aliceID)

	code, out = a.do(http.MethodGet, "/api/messages/users?search=car", bobTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["users"], 1)

	code, out = a.do(http.MethodGet, "/api/messages/"+aliceID, bobTok, nil)
	require.Equal(t, http.StatusOK, code)
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].(map[string]any)["text"])
	assert.Equal(t, true, msgs[2].(map[string]any)["seen"])

	code, out = a.do(http.MethodGet, "/api/messages/users", bobTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["unseenMessages"])

	code, _ = a.do(http.MethodPut, "/api/messages/mark/"+msgs[0].(map[string]any)["_id"].(string), bobTok, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPut, "/api/messages/mark/999", bobTok, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(http.MethodGet, "/api/messages/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOperationalRoutes(t *testing.T) {
	a := newAPI(t, nil)
	code, out := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])

	resp, err := http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, _ = a.do(http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	down := newAPI(t, func(context.Context) error { return errors.New("mongo unreachable") })
	code, out = down.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, out["success"])
}
