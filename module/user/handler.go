package user

import (
	"DMChat/global"
	midsec "DMChat/middleware/security"
	userservice "DMChat/module/user/service"
	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *userservice.Service
}

func NewHandler(svc *userservice.Service) *Handler {
	return &Handler{svc: svc}
}

// HandlerSignup POST /api/auth/signup
func (h *Handler) HandlerSignup(c *gin.Context) {
	var in userservice.SignupParams
	if err := c.ShouldBindJSON(&in); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg("Missing Details"))
		return
	}
	sess, err := h.svc.Signup(c.Request.Context(), in)
	if err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, gin.H{
		"userData": sess.User,
		"token":    sess.Token,
		"message":  "Account created successfully",
	})
}

// HandlerLogin POST /api/auth/login
func (h *Handler) HandlerLogin(c *gin.Context) {
	var in userservice.LoginParams
	if err := c.ShouldBindJSON(&in); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg("Missing Details"))
		return
	}
	in.IP = c.ClientIP()
	in.UserAgent = c.Request.UserAgent()
	sess, err := h.svc.Login(c.Request.Context(), in)
	if err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, gin.H{
		"userData": sess.User,
		"token":    sess.Token,
		"message":  "Login successful",
	})
}

// HandlerLogout POST /api/auth/logout
func (h *Handler) HandlerLogout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), midsec.CurrentUserID(c), c.GetString(midsec.CtxSessionIDKey)); err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, gin.H{"message": "Logged out"})
}

// HandlerCheckAuth GET /api/auth/check-auth
func (h *Handler) HandlerCheckAuth(c *gin.Context) {
	u, ok := midsec.CurrentUser(c)
	if !ok {
		global.Fail(c, errs.ErrUnauthorized.WrapMsg("Not authorized"))
		return
	}
	global.OK(c, gin.H{"user": u})
}

// HandlerUpdateProfile PUT /api/auth/update-profile
func (h *Handler) HandlerUpdateProfile(c *gin.Context) {
	var in userservice.ProfileParams
	if err := c.ShouldBindJSON(&in); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg("invalid body"))
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), midsec.CurrentUserID(c), in)
	if err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, gin.H{"user": u})
}
