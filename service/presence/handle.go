package presence

import "DMChat/tools/errs"

// Push event types.
const (
	EventPresenceUpdate = "presence.update"
	EventMessageNew     = "message.new"
)

var (
	ErrHandleClosed = errs.New("connection handle closed")
	ErrQueueFull    = errs.New("connection send queue full")
)

// Event is one out-of-band push. Version is set for presence updates only.
type Event struct {
	Type    string
	Version uint64
	Data    any
}

// Handle is one live push channel bound to exactly one user.
// Push must not block: it queues ev or fails.
type Handle interface {
	ID() string
	UserID() string
	Push(ev Event) error
	Close()
}

// SessionBound is implemented by handles opened under a login session.
type SessionBound interface {
	SessionID() string
}
