package chat

import (
	"net/http"

	"DMChat/global"
	"DMChat/logger"
	midsec "DMChat/middleware/security"
	"DMChat/service/presence"
	"DMChat/tools/errs"
	"DMChat/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway upgrades authenticated requests to push connections and ties their
// lifetime to the presence broadcaster.
type Gateway struct {
	b        *presence.Broadcaster
	auth     midsec.Authenticator
	conns    *ConnManager
	conf     ConnConf
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewGateway(b *presence.Broadcaster, auth midsec.Authenticator, conns *ConnManager, conf ConnConf, checkOrigin func(origin string) bool) *Gateway {
	conf.norm()
	if conns == nil {
		conns = NewConnManager(nil)
	}
	g := &Gateway{
		b:     b,
		auth:  auth,
		conns: conns,
		conf:  conf,
		log:   logger.Named("ws"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin == nil || checkOrigin(r.Header.Get("Origin"))
		},
	}
	return g
}

func (g *Gateway) Conns() *ConnManager { return g.conns }

// HandleWS ===== GET /ws =====
func (g *Gateway) HandleWS(c *gin.Context) {
	token := midsec.ExtractToken(c.Request, &midsec.Options{
		HeaderToken:               midsec.HeaderToken,
		EnableAuthorizationBearer: true,
		EnableQuery:               true,
	})
	if token == "" {
		global.Fail(c, errs.ErrUnauthorized.WrapMsg("Not authorized, no token"))
		return
	}
	user, sid, err := g.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		global.Fail(c, err)
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求/握手失败，Upgrade 已写回错误响应
		g.log.Info("[WS] upgrade failed", zap.String("user", user.ID), zap.Error(err))
		return
	}
	cl := NewClient(ids.GenerateString(), user.ID, ws, g.conf, g.log)
	cl.SessionId = sid
	g.Serve(cl)
}

// Serve runs a client until its socket dies: register, pump, deregister.
func (g *Gateway) Serve(cl *Client) {
	g.conns.Add(cl)
	g.log.Info("[WS] connected", zap.String("user", cl.UserId), zap.String("conn", cl.ConnID))

	go cl.writePump()
	g.b.Connect(cl)

	cl.readPump()

	// 下线顺序：先从 presence 摘除（仅当仍是当前连接），再关闭
	g.b.Disconnect(cl)
	cl.Close()
	g.conns.Remove(cl)
	g.log.Info("[WS] closed", zap.String("user", cl.UserId), zap.String("conn", cl.ConnID))
}

// Shutdown closes all open connections.
func (g *Gateway) Shutdown() {
	g.conns.CloseAll()
}
