package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Group registers routes, prefixing the auth middleware when RouteOpt.IsAuth is set.
type Group struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewGroup(r gin.IRoutes, auth gin.HandlerFunc) *Group {
	return &Group{r: r, auth: auth}
}

func (g *Group) chain(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && g.auth != nil {
		return []gin.HandlerFunc{g.auth, handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func (g *Group) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	g.r.POST(path, g.chain(handler, opt)...)
}

// 封装 GET
func (g *Group) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	g.r.GET(path, g.chain(handler, opt)...)
}

// 封装 PUT
func (g *Group) PUT(path string, handler gin.HandlerFunc, opt RouteOpt) {
	g.r.PUT(path, g.chain(handler, opt)...)
}
