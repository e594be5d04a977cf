package httpapi

import (
	"context"
	"net/http"
	"time"

	"DMChat/global"
	"DMChat/global/config"
	"DMChat/middleware"
	midsec "DMChat/middleware/security"
	"DMChat/module/chat"
	"DMChat/module/user"
	"DMChat/service/assets"
	servicechat "DMChat/service/chat"
	"DMChat/service/metrics"
	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// Deps is everything the HTTP surface needs. Metrics and Health are optional.
type Deps struct {
	Conf    config.HTTPConfig
	Auth    midsec.Authenticator
	Users   *user.Handler
	Chat    *chat.Handler
	Gateway *servicechat.Gateway
	Assets  assets.Store
	Metrics *metrics.Metrics
	Health  func(ctx context.Context) error
}

// NewEngine builds the gin engine with every route mounted.
func NewEngine(d Deps) *gin.Engine {
	r := gin.New()
	mids := middleware.NewManager().
		Add(gin.Recovery()).
		Add(middleware.AccessLog()).
		Add(middleware.CORS(d.Conf.CorsOrigins))
	if d.Conf.MaxBodySize > 0 {
		mids.Add(middleware.BodyLimit(d.Conf.MaxBodySize))
	}
	mids.Mount(r)

	authMid := midsec.Middleware(d.Auth, midsec.DefaultOptions())

	auth := middleware.NewGroup(r.Group("/api/auth"), authMid)
	auth.POST("/signup", d.Users.HandlerSignup, middleware.RouteOpt{})
	auth.POST("/login", d.Users.HandlerLogin, middleware.RouteOpt{})
	auth.POST("/logout", d.Users.HandlerLogout, middleware.RouteOpt{IsAuth: true})
	auth.PUT("/update-profile", d.Users.HandlerUpdateProfile, middleware.RouteOpt{IsAuth: true})
	auth.GET("/check-auth", d.Users.HandlerCheckAuth, middleware.RouteOpt{IsAuth: true})

	msgs := middleware.NewGroup(r.Group("/api/messages"), authMid)
	msgs.GET("/users", d.Chat.HandlerUsers, middleware.RouteOpt{IsAuth: true})
	msgs.GET("/:id", d.Chat.HandlerConversation, middleware.RouteOpt{IsAuth: true})
	msgs.PUT("/mark/:id", d.Chat.HandlerMarkSeen, middleware.RouteOpt{IsAuth: true})
	msgs.POST("/send/:id", d.Chat.HandlerSend, middleware.RouteOpt{IsAuth: true})

	r.GET(assets.RoutePrefix+":id", assets.Handler(d.Assets))
	r.GET("/ws", d.Gateway.HandleWS)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	r.GET("/healthz", health(d.Health))

	r.NoRoute(func(c *gin.Context) {
		global.Fail(c, errs.ErrRecordNotFound.WrapMsg("route not found"))
	})
	return r
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, global.Msg{Success: false, Message: err.Error()})
				return
			}
		}
		global.OK(c, gin.H{"status": "ok"})
	}
}
