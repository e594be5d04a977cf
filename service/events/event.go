package events

import (
	"context"
	"encoding/json"
	"time"

	"DMChat/tools/errs"

	"github.com/google/uuid"
)

// Domain event types.
const (
	TypeMessageCreated  = "message.created"
	TypeMessageSeen     = "message.seen"
	TypePresenceChanged = "presence.changed"
	TypeUserSignedUp    = "user.signed_up"
)

// Event is the envelope published to the integration bus. Key is the
// partition/ordering key (usually a user id).
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

func New(typ, key string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errs.ErrInternalServer.WrapErr(err, "encode event", "type", e.Type)
	}
	return b, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// payloads

type MessageSeen struct {
	ReaderID string `json:"readerId"`
	PeerID   string `json:"peerId"`
	Count    int64  `json:"count"`
	ID       string `json:"messageId,omitempty"`
}

type PresenceChanged struct {
	UserID  string `json:"userId"`
	Online  bool   `json:"online"`
	Version uint64 `json:"version"`
	Total   int    `json:"total"`
}
