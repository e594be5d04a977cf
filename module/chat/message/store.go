package message

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	chatmodel "DMChat/module/chat/model"
	"DMChat/tools/errs"
	"DMChat/tools/ids"
)

// Store persists direct messages. Implementations must return conversation
// rows ordered by CreatedAt then Seq, and keep seen transitions one-way.
type Store interface {
	// Insert validates m and assigns ID, Seq, CreatedAt and Seen=false.
	Insert(ctx context.Context, m *chatmodel.Message) error
	Get(ctx context.Context, id string) (*chatmodel.Message, error)
	Conversation(ctx context.Context, a, b string) ([]*chatmodel.Message, error)
	// MarkSeen is idempotent; an unknown id yields ErrRecordNotFound.
	MarkSeen(ctx context.Context, id string) (*chatmodel.Message, error)
	// MarkConversationSeen flips every unseen message from peer to reader and returns how many changed.
	MarkConversationSeen(ctx context.Context, reader, peer string) (int64, error)
	CountUnseen(ctx context.Context, from, to string) (int64, error)
	// LastContact is the newest CreatedAt in either direction; ok is false when a and b never talked.
	LastContact(ctx context.Context, a, b string) (t time.Time, ok bool, err error)
	Close(ctx context.Context) error
}

// Stamper hands out ids and creation times for one store. CreatedAt has
// millisecond precision and never goes backwards; Seq breaks ties.
type Stamper struct {
	mu   sync.Mutex
	gen  *ids.Generator
	last time.Time
	now  func() time.Time
}

func NewStamper(gen *ids.Generator) *Stamper {
	return &Stamper{gen: gen, now: time.Now}
}

// Stamp fills ID, Seq and CreatedAt.
func (s *Stamper) Stamp(m *chatmodel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC().Truncate(time.Millisecond)
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	seq := s.gen.Next()
	m.Seq = seq
	m.ID = strconv.FormatInt(seq, 10)
	m.CreatedAt = t
	m.Seen = false
}

// Observe raises the floor to t, used when reopening a store that already holds rows.
func (s *Stamper) Observe(t time.Time) {
	s.mu.Lock()
	if t.After(s.last) {
		s.last = t
	}
	s.mu.Unlock()
}

func validate(m *chatmodel.Message) error {
	if m == nil {
		return errs.ErrArgs.WrapMsg("message is nil")
	}
	m.SenderID = strings.TrimSpace(m.SenderID)
	m.ReceiverID = strings.TrimSpace(m.ReceiverID)
	if m.SenderID == "" || m.ReceiverID == "" {
		return errs.ErrArgs.WrapMsg("sender and receiver are required")
	}
	if !m.HasBody() {
		return errs.ErrArgs.WrapMsg("message must have text or image")
	}
	return nil
}
