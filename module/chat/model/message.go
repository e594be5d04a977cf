package model

import (
	"strings"
	"time"
)

const MessageTableName = "messages"

// Message is one direct message. Seq is the store-assigned insertion order and
// breaks ties between equal CreatedAt values; it never leaves the server.
type Message struct {
	ID         string    `bson:"_id" json:"_id"`
	Seq        int64     `bson:"seq" json:"-"`
	SenderID   string    `bson:"senderId" json:"senderId"`
	ReceiverID string    `bson:"receiverId" json:"receiverId"`
	Text       string    `bson:"text,omitempty" json:"text,omitempty"`
	Image      string    `bson:"image,omitempty" json:"image,omitempty"` // asset reference (URL)
	Seen       bool      `bson:"seen" json:"seen"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

func (*Message) TableName() string { return MessageTableName }

// HasBody reports whether at least one of text/image is present.
func (m *Message) HasBody() bool {
	return strings.TrimSpace(m.Text) != "" || strings.TrimSpace(m.Image) != ""
}

// Peer returns the other participant from self's point of view.
func (m *Message) Peer(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// Before orders messages by CreatedAt, then Seq.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}

func (m *Message) Clone() *Message {
	c := *m
	return &c
}
