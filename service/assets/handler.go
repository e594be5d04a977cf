package assets

import (
	"net/http"
	"strconv"

	"DMChat/global"

	"github.com/gin-gonic/gin"
)

// Handler serves GET /api/assets/:id.
func Handler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			global.Fail(c, err)
			return
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Header("Content-Length", strconv.Itoa(len(a.Data)))
		c.Data(http.StatusOK, a.ContentType, a.Data)
	}
}
