package security

import (
	"context"
	"net/http"
	"strings"

	"DMChat/global"
	usermodel "DMChat/module/user/model"
	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// context keys set by Middleware
const (
	CtxUserKey      = "user"      // *usermodel.User
	CtxUserIDKey    = "userId"    // string
	CtxTokenKey     = "token"     // string
	CtxSessionIDKey = "sessionId" // string
)

// HeaderToken is the header the web client sends its token in.
const HeaderToken = "token"

// Authenticator resolves a raw token to the user behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*usermodel.User, string, error)
}

type Options struct {
	HeaderToken               string // 默认 "token"
	EnableAuthorizationBearer bool   // 默认 true
	EnableQuery               bool   // ?token=，仅 websocket 握手使用
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               HeaderToken,
		EnableAuthorizationBearer: true,
	}
}

// ExtractToken reads the token from the configured header, then Authorization: Bearer, then the query.
func ExtractToken(r *http.Request, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	token := strings.TrimSpace(r.Header.Get(opts.HeaderToken))

	// 兼容 Authorization: Bearer xxx
	if token == "" && opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(r.Header.Get("Authorization")); len(authz) > 7 &&
			strings.EqualFold(authz[:7], "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" && opts.EnableQuery {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return token
}

// Middleware rejects requests without a resolvable identity with 401 and
// stores the user in the gin context otherwise.
func Middleware(auth Authenticator, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := ExtractToken(c.Request, opts)
		if token == "" {
			global.Fail(c, errs.ErrUnauthorized.WrapMsg("Not authorized, no token"))
			return
		}
		user, sessionID, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errs.ErrUnauthorized.Is(err) {
				global.Fail(c, err)
				return
			}
			global.Fail(c, errs.ErrUnauthorized.WrapMsg("Not authorized, "+errs.Message(err)))
			return
		}
		c.Set(CtxUserKey, user)
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxTokenKey, token)
		c.Set(CtxSessionIDKey, sessionID)
		c.Next()
	}
}

// CurrentUser returns the user stored by Middleware.
func CurrentUser(c *gin.Context) (*usermodel.User, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*usermodel.User)
	return u, ok && u != nil
}

// CurrentUserID is empty when the request carries no identity.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
