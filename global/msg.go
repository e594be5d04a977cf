package global

import (
	"net/http"

	"DMChat/logger"
	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Msg is the error envelope shared by every endpoint.
type Msg struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK writes {success:true} merged with body.
func OK(c *gin.Context, body gin.H) {
	out := gin.H{"success": true}
	for k, v := range body {
		out[k] = v
	}
	c.JSON(http.StatusOK, out)
}

// Fail maps err onto a status code and aborts the chain.
func Fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, Msg{Success: false, Message: errs.Message(err)})
}
