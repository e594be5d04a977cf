package service

import (
	"context"
	"strings"
	"time"

	usermodel "DMChat/module/user/model"
	userstore "DMChat/module/user/store"
	"DMChat/service/assets"
	"DMChat/service/events"
	"DMChat/service/storage"
	"DMChat/tools/errs"
	"DMChat/tools/ids"
	jwtlib "DMChat/tools/security"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// Kicker closes a user's live push connection if that session opened it.
type Kicker interface {
	Kick(userID, sessionID string) bool
}

// Emitter accepts domain events without blocking.
type Emitter interface {
	Emit(e events.Event) bool
}

// SignupParams 注册入参
type SignupParams struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// LoginParams 登录入参
type LoginParams struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// ProfileParams carries update-profile input; ProfilePic may be a data URL.
type ProfileParams struct {
	ProfilePic *string `json:"profilePic"`
	Bio        *string `json:"bio"`
	FullName   *string `json:"fullName"`
}

// Session is what signup/login hand back to the client.
type Session struct {
	User  *usermodel.User
	Token string
}

type Service struct {
	users    userstore.Store
	sessions storage.SessionStore
	assets   assets.Store
	jwt      jwtlib.Options
	kicker   Kicker
	events   Emitter
	now      func() time.Time
	cost     int
}

func New(users userstore.Store, sessions storage.SessionStore, assetStore assets.Store, jwt jwtlib.Options, kicker Kicker, emitter Emitter) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		assets:   assetStore,
		jwt:      jwt,
		kicker:   kicker,
		events:   emitter,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

func (s *Service) Signup(ctx context.Context, in SignupParams) (*Session, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = usermodel.NormalizeEmail(in.Email)
	in.Bio = strings.TrimSpace(in.Bio)
	if in.FullName == "" || in.Email == "" || in.Password == "" || in.Bio == "" {
		return nil, errs.ErrArgs.WrapMsg("Missing Details")
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, errs.ErrDuplicateKey.WrapMsg("Account already exists")
	} else if !errs.ErrRecordNotFound.Is(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("invalid password", "err", err)
	}
	now := s.now().UTC()
	u := &usermodel.User{
		ID:        ids.GenerateString(),
		Email:     in.Email,
		FullName:  in.FullName,
		Bio:       in.Bio,
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.emit(events.New(events.TypeUserSignedUp, u.ID, u.Safe()))
	return s.issue(ctx, u, "", "")
}

func (s *Service) Login(ctx context.Context, in LoginParams) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return nil, errs.ErrUnauthorized.WrapMsg("Invalid credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.Password)) != nil {
		return nil, errs.ErrUnauthorized.WrapMsg("Invalid credentials")
	}
	return s.issue(ctx, u, in.IP, in.UserAgent)
}

func (s *Service) issue(ctx context.Context, u *usermodel.User, ip, ua string) (*Session, error) {
	sid := uuid.NewString()
	issued, err := jwtlib.Generate(s.jwt, u.ID, sid)
	if err != nil {
		return nil, err
	}
	rec := &usermodel.UserSession{
		SessionID: sid,
		UserID:    u.ID,
		TokenHash: issued.Hash,
		IP:        ip,
		UserAgent: ua,
		LoginTime: s.now().UTC(),
		ExpireAt:  issued.ExpireAt,
	}
	if err := s.sessions.Save(ctx, rec); err != nil {
		return nil, err
	}
	return &Session{User: u.Safe(), Token: issued.Token}, nil
}

// Authenticate verifies the token signature, then requires a live session
// whose stored hash matches. Returns the user and the session id.
func (s *Service) Authenticate(ctx context.Context, token string) (*usermodel.User, string, error) {
	claims, err := jwtlib.Verify(s.jwt, token)
	if err != nil {
		return nil, "", err
	}
	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return nil, "", errs.ErrTokenKicked.WrapMsg("session ended")
		}
		return nil, "", err
	}
	if sess.UserID != claims.UserID() || sess.TokenHash != jwtlib.HashToken(token) {
		return nil, "", errs.ErrTokenInvalid.WrapMsg("token does not match session")
	}
	u, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return nil, "", errs.ErrTokenInvalid.WrapMsg("user no longer exists")
		}
		return nil, "", err
	}
	return u.Safe(), sess.SessionID, nil
}

// Logout ends the session and drops the push connection that session opened.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
		return err
	}
	if s.kicker != nil {
		s.kicker.Kick(userID, sessionID)
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileParams) (*usermodel.User, error) {
	var patch usermodel.ProfilePatch
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, errs.ErrArgs.WrapMsg("fullName cannot be empty")
		}
		patch.FullName = &name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		patch.Bio = &bio
	}
	if in.ProfilePic != nil && strings.TrimSpace(*in.ProfilePic) != "" {
		ref, err := assets.Resolve(ctx, s.assets, *in.ProfilePic)
		if err != nil {
			return nil, err
		}
		patch.ProfilePic = &ref
	}
	u, err := s.users.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	return u.Safe(), nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*usermodel.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Safe(), nil
}

// ListPeers returns every user except the requester, filtered by search.
func (s *Service) ListPeers(ctx context.Context, requester, search string) ([]*usermodel.User, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	peers := lo.Filter(all, func(u *usermodel.User, _ int) bool {
		return u.ID != requester && u.Matches(search)
	})
	return lo.Map(peers, func(u *usermodel.User, _ int) *usermodel.User { return u.Safe() }), nil
}

func (s *Service) emit(e events.Event) {
	if s.events != nil {
		s.events.Emit(e)
	}
}
