package store

import (
	"context"
	"sort"
	"sync"
	"time"

	usermodel "DMChat/module/user/model"
	"DMChat/tools/errs"
)

// Store is the user directory. Emails are unique after normalization.
type Store interface {
	Create(ctx context.Context, u *usermodel.User) error
	GetByID(ctx context.Context, id string) (*usermodel.User, error)
	GetByEmail(ctx context.Context, email string) (*usermodel.User, error)
	// List returns every user ordered by FullName.
	List(ctx context.Context) ([]*usermodel.User, error)
	UpdateProfile(ctx context.Context, id string, patch usermodel.ProfilePatch) (*usermodel.User, error)
}

type MemStore struct {
	mu      sync.RWMutex
	byID    map[string]*usermodel.User
	byEmail map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		byID:    make(map[string]*usermodel.User),
		byEmail: make(map[string]string),
	}
}

func (s *MemStore) Create(_ context.Context, u *usermodel.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := usermodel.NormalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return errs.ErrDuplicateKey.WrapMsg("Account already exists")
	}
	if _, ok := s.byID[u.ID]; ok {
		return errs.ErrDuplicateKey.WrapMsg("user id exists", "id", u.ID)
	}
	c := *u
	c.Email = email
	s.byID[c.ID] = &c
	s.byEmail[email] = c.ID
	return nil
}

func (s *MemStore) GetByID(_ context.Context, id string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("User not found", "id", id)
	}
	c := *u
	return &c, nil
}

func (s *MemStore) GetByEmail(_ context.Context, email string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[usermodel.NormalizeEmail(email)]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("User not found", "email", email)
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *MemStore) List(_ context.Context) ([]*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*usermodel.User, 0, len(s.byID))
	for _, u := range s.byID {
		c := *u
		out = append(out, &c)
	}
	sortUsers(out)
	return out, nil
}

func (s *MemStore) UpdateProfile(_ context.Context, id string, patch usermodel.ProfilePatch) (*usermodel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("User not found", "id", id)
	}
	applyPatch(u, patch, time.Now().UTC())
	c := *u
	return &c, nil
}

func applyPatch(u *usermodel.User, p usermodel.ProfilePatch, now time.Time) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.ProfilePic != nil {
		u.ProfilePic = *p.ProfilePic
	}
	u.UpdatedAt = now
}

func sortUsers(us []*usermodel.User) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].FullName != us[j].FullName {
			return us[i].FullName < us[j].FullName
		}
		return us[i].ID < us[j].ID
	})
}
