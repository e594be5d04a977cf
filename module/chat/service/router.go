package service

import (
	"context"
	"strings"

	"DMChat/logger"
	"DMChat/module/chat/message"
	chatmodel "DMChat/module/chat/model"
	usermodel "DMChat/module/user/model"
	"DMChat/service/assets"
	"DMChat/service/events"
	"DMChat/service/presence"
	"DMChat/tools/errs"

	"go.uber.org/zap"
)

// UserLookup resolves user ids; unknown ids yield ErrRecordNotFound.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*usermodel.User, error)
}

// Pusher delivers one event to one user's live connection, if any.
type Pusher interface {
	PushTo(userID string, ev presence.Event) bool
}

type Emitter interface {
	Emit(e events.Event) bool
}

// SendParams is the body of a send request. Image may be a data URL or an http(s) URL.
type SendParams struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type Option func(*Router)

func WithEmitter(e Emitter) Option { return func(r *Router) { r.events = e } }

// WithSentHook runs after every persisted message.
func WithSentHook(f func()) Option { return func(r *Router) { r.onSent = f } }

// Router persists messages and pushes them point-to-point to online receivers.
type Router struct {
	store  message.Store
	users  UserLookup
	push   Pusher
	assets assets.Store
	events Emitter
	onSent func()
	log    *zap.Logger
}

func NewRouter(store message.Store, users UserLookup, push Pusher, assetStore assets.Store, opts ...Option) *Router {
	r := &Router{
		store:  store,
		users:  users,
		push:   push,
		assets: assetStore,
		onSent: func() {},
		log:    logger.Named("router"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func requireIdentity(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errs.ErrArgs.WrapMsg("no identity")
	}
	return nil
}

// Send persists a message from senderID to receiverID and, when the receiver
// is online, pushes it to that connection only. Push failures never fail the send.
func (r *Router) Send(ctx context.Context, senderID, receiverID string, in SendParams) (*chatmodel.Message, error) {
	if err := requireIdentity(senderID); err != nil {
		return nil, err
	}
	image := strings.TrimSpace(in.Image)
	if strings.TrimSpace(in.Text) == "" && image == "" {
		return nil, errs.ErrArgs.WrapMsg("message must have text or image")
	}
	if _, err := r.users.GetUser(ctx, receiverID); err != nil {
		return nil, err
	}
	ref, err := assets.Resolve(ctx, r.assets, image)
	if err != nil {
		return nil, err
	}

	m := &chatmodel.Message{SenderID: senderID, ReceiverID: receiverID, Text: in.Text, Image: ref}
	if err := r.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	r.onSent()
	r.emit(events.New(events.TypeMessageCreated, receiverID, m))

	if r.push.PushTo(receiverID, presence.Event{Type: presence.EventMessageNew, Data: m}) {
		r.log.Debug("message pushed", zap.String("msg", m.ID), zap.String("user", receiverID))
	}
	return m, nil
}

// FetchConversation marks every unseen message from peerID to userID as seen,
// then returns the whole conversation in ascending order.
func (r *Router) FetchConversation(ctx context.Context, userID, peerID string) ([]*chatmodel.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	if _, err := r.users.GetUser(ctx, peerID); err != nil {
		return nil, err
	}
	n, err := r.store.MarkConversationSeen(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		r.emit(events.New(events.TypeMessageSeen, peerID, events.MessageSeen{ReaderID: userID, PeerID: peerID, Count: n}))
	}
	return r.store.Conversation(ctx, userID, peerID)
}

// MarkSeen flips one message to seen. Only its receiver may do so; for
// anyone else the message does not exist.
func (r *Router) MarkSeen(ctx context.Context, userID, messageID string) (*chatmodel.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	m, err := r.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != userID {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "id", messageID)
	}
	if m.Seen {
		return m, nil
	}
	m, err = r.store.MarkSeen(ctx, messageID)
	if err != nil {
		return nil, err
	}
	peer := m.Peer(userID)
	r.emit(events.New(events.TypeMessageSeen, peer, events.MessageSeen{ReaderID: userID, PeerID: peer, Count: 1, ID: m.ID}))
	return m, nil
}

func (r *Router) emit(e events.Event) {
	if r.events != nil {
		r.events.Emit(e)
	}
}
