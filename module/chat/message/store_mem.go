package message

import (
	"context"
	"sort"
	"sync"
	"time"

	chatmodel "DMChat/module/chat/model"
	"DMChat/tools/errs"
	"DMChat/tools/ids"
)

// MemStore keeps messages in process memory, grouped by conversation pair.
type MemStore struct {
	mu     sync.RWMutex
	stamp  *Stamper
	byID   map[string]*chatmodel.Message
	byPair map[pairKey][]*chatmodel.Message
}

type pairKey struct{ lo, hi string }

func keyOf(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

func NewMemStore(gen *ids.Generator) *MemStore {
	return &MemStore{
		stamp:  NewStamper(gen),
		byID:   make(map[string]*chatmodel.Message),
		byPair: make(map[pairKey][]*chatmodel.Message),
	}
}

func (s *MemStore) Insert(_ context.Context, m *chatmodel.Message) error {
	if err := validate(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// stamping under the write lock keeps slice order equal to (createdAt, seq) order
	s.stamp.Stamp(m)
	c := m.Clone()
	s.byID[c.ID] = c
	k := keyOf(c.SenderID, c.ReceiverID)
	s.byPair[k] = append(s.byPair[k], c)
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "id", id)
	}
	return m.Clone(), nil
}

func (s *MemStore) Conversation(_ context.Context, a, b string) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.byPair[keyOf(a, b)]
	out := make([]*chatmodel.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *MemStore) MarkSeen(_ context.Context, id string) (*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "id", id)
	}
	m.Seen = true
	return m.Clone(), nil
}

func (s *MemStore) MarkConversationSeen(_ context.Context, reader, peer string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.byPair[keyOf(reader, peer)] {
		if m.SenderID == peer && m.ReceiverID == reader && !m.Seen {
			m.Seen = true
			n++
		}
	}
	return n, nil
}

func (s *MemStore) CountUnseen(_ context.Context, from, to string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.byPair[keyOf(from, to)] {
		if m.SenderID == from && m.ReceiverID == to && !m.Seen {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) LastContact(_ context.Context, a, b string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.byPair[keyOf(a, b)]
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[len(rows)-1].CreatedAt, true, nil
}

func (s *MemStore) Close(context.Context) error { return nil }
