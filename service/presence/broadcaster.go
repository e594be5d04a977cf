package presence

import (
	"DMChat/logger"

	"go.uber.org/zap"
)

// Listener observes presence changes and push outcomes (metrics, domain events).
type Listener interface {
	PresenceChanged(userID string, online bool, snap Snapshot)
	Pushed(eventType string, err error)
}

type Option func(*Broadcaster)

func WithLogger(l *zap.Logger) Option {
	return func(b *Broadcaster) { b.log = l }
}

func WithListener(l Listener) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.listeners = append(b.listeners, l)
		}
	}
}

// Broadcaster owns every mutation of the registry and fans the online set out
// to all handles after each effective change. Pushes are best effort: a handle
// that fails is closed and deregistered.
type Broadcaster struct {
	reg       *Registry
	log       *zap.Logger
	listeners []Listener
}

func NewBroadcaster(reg *Registry, opts ...Option) *Broadcaster {
	b := &Broadcaster{reg: reg}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = logger.Named("presence")
	}
	return b
}

func (b *Broadcaster) Registry() *Registry { return b.reg }

// Connect registers h for its user. A superseded handle is closed; its own
// later Disconnect is then a no-op.
func (b *Broadcaster) Connect(h Handle) {
	prev, snap, changed := b.reg.Register(h.UserID(), h)
	if !changed {
		return
	}
	if prev != nil {
		b.log.Info("connection superseded", zap.String("user", h.UserID()),
			zap.String("old", prev.ID()), zap.String("conn", h.ID()))
		prev.Close()
	}
	b.notify(h.UserID(), true, snap)
	b.broadcast(snap)
}

// Disconnect deregisters h if it is still the user's live handle.
func (b *Broadcaster) Disconnect(h Handle) {
	snap, changed := b.reg.Deregister(h.UserID(), h)
	if !changed {
		return
	}
	b.notify(h.UserID(), false, snap)
	b.broadcast(snap)
}

// Kick closes and deregisters the user's live handle when it was opened by
// sessionID. An empty sessionID, or a handle not bound to a session, matches.
func (b *Broadcaster) Kick(userID, sessionID string) bool {
	h, ok := b.reg.Lookup(userID)
	if !ok {
		return false
	}
	if sb, bound := h.(SessionBound); bound && sessionID != "" && sb.SessionID() != sessionID {
		return false
	}
	b.Disconnect(h)
	h.Close()
	return true
}

// PushTo delivers ev to userID's live handle only. It reports whether the event was queued.
func (b *Broadcaster) PushTo(userID string, ev Event) bool {
	h, ok := b.reg.Lookup(userID)
	if !ok {
		return false
	}
	if err := h.Push(ev); err != nil {
		b.pushed(ev.Type, err)
		b.log.Warn("push failed, dropping connection", zap.String("user", userID),
			zap.String("conn", h.ID()), zap.String("event", ev.Type), zap.Error(err))
		h.Close()
		b.Disconnect(h)
		return false
	}
	b.pushed(ev.Type, nil)
	return true
}

func (b *Broadcaster) broadcast(snap Snapshot) {
	ev := Event{Type: EventPresenceUpdate, Version: snap.Version, Data: snap.Online}
	var failed []Handle
	for _, h := range snap.Handles {
		err := h.Push(ev)
		b.pushed(ev.Type, err)
		if err != nil {
			b.log.Warn("presence push failed", zap.String("user", h.UserID()),
				zap.String("conn", h.ID()), zap.Error(err))
			failed = append(failed, h)
		}
	}
	for _, h := range failed {
		h.Close()
		b.Disconnect(h)
	}
}

func (b *Broadcaster) notify(userID string, online bool, snap Snapshot) {
	for _, l := range b.listeners {
		l.PresenceChanged(userID, online, snap)
	}
}

func (b *Broadcaster) pushed(eventType string, err error) {
	for _, l := range b.listeners {
		l.Pushed(eventType, err)
	}
}
