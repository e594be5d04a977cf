package chat

import (
	"context"

	"DMChat/global"
	midsec "DMChat/middleware/security"
	chatservice "DMChat/module/chat/service"
	usermodel "DMChat/module/user/model"
	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// PeerLister lists every user except the requester, optionally filtered.
type PeerLister interface {
	ListPeers(ctx context.Context, requester, search string) ([]*usermodel.User, error)
}

type Handler struct {
	router *chatservice.Router
	agg    *chatservice.Aggregator
	peers  PeerLister
}

func NewHandler(router *chatservice.Router, agg *chatservice.Aggregator, peers PeerLister) *Handler {
	return &Handler{router: router, agg: agg, peers: peers}
}

// HandlerUsers GET /api/messages/users?search=
func (h *Handler) HandlerUsers(c *gin.Context) {
	ctx := c.Request.Context()
	me := midsec.CurrentUserID(c)
	users, err := h.peers.ListPeers(ctx, me, c.Query("search"))
	if err != nil {
		global.Fail(c, err)
		return
	}
	sum, err := h.agg.PeerSummaries(ctx, me, users)
	if err != nil {
		global.Fail(c, err)
		return
	}
	sum.SortByRecency(users)
	global.OK(c, gin.H{
		"users":           users,
		"unseenMessages":  sum.Unseen,
		"lastMessageTime": sum.LastContact,
	})
}

// HandlerConversation GET /api/messages/:id
func (h *Handler) HandlerConversation(c *gin.Context) {
	msgs, err := h.router.FetchConversation(c.Request.Context(), midsec.CurrentUserID(c), c.Param("id"))
	if err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, gin.H{"messages": msgs})
}

// HandlerMarkSeen PUT /api/messages/mark/:id
func (h *Handler) HandlerMarkSeen(c *gin.Context) {
	if _, err := h.router.MarkSeen(c.Request.Context(), midsec.CurrentUserID(c), c.Param("id")); err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, nil)
}

// HandlerSend POST /api/messages/send/:id
func (h *Handler) HandlerSend(c *gin.Context) {
	var in chatservice.SendParams
	if err := c.ShouldBindJSON(&in); err != nil {
		global.Fail(c, errs.ErrArgs.WrapMsg("invalid body"))
		return
	}
	m, err := h.router.Send(c.Request.Context(), midsec.CurrentUserID(c), c.Param("id"), in)
	if err != nil {
		global.Fail(c, err)
		return
	}
	global.OK(c, gin.H{"newMessage": m})
}
