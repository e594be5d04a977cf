package storage

import (
	"context"
	"sync"
	"time"

	usermodel "DMChat/module/user/model"
	"DMChat/tools/errs"
)

// SessionStore keeps the server side of issued tokens. A token is only
// accepted while its session record exists.
type SessionStore interface {
	Save(ctx context.Context, s *usermodel.UserSession) error
	// Get returns ErrRecordNotFound for unknown or expired sessions.
	Get(ctx context.Context, sessionID string) (*usermodel.UserSession, error)
	Delete(ctx context.Context, userID, sessionID string) error
	// DeleteUser drops every session of userID and returns how many were removed.
	DeleteUser(ctx context.Context, userID string) (int, error)
	Close() error
}

// MemSessionStore is the single-process SessionStore.
type MemSessionStore struct {
	mu     sync.Mutex
	bySID  map[string]usermodel.UserSession
	byUser map[string]map[string]struct{}
	now    func() time.Time
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{
		bySID:  make(map[string]usermodel.UserSession),
		byUser: make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

func (m *MemSessionStore) Save(_ context.Context, s *usermodel.UserSession) error {
	if s == nil || s.SessionID == "" || s.UserID == "" {
		return errs.ErrArgs.WrapMsg("session id and user id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySID[s.SessionID] = *s
	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.SessionID] = struct{}{}
	return nil
}

func (m *MemSessionStore) Get(_ context.Context, sessionID string) (*usermodel.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySID[sessionID]
	if !ok || s.Expired(m.now()) {
		return nil, errs.ErrRecordNotFound.WrapMsg("session not found", "sid", sessionID)
	}
	return &s, nil
}

func (m *MemSessionStore) Delete(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bySID, sessionID)
	if set := m.byUser[userID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.byUser, userID)
		}
	}
	return nil
}

func (m *MemSessionStore) DeleteUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byUser[userID]
	for sid := range set {
		delete(m.bySID, sid)
	}
	delete(m.byUser, userID)
	return len(set), nil
}

func (m *MemSessionStore) Close() error { return nil }
