package service

import (
	"context"
	"strings"
	"testing"
	"time"

	userstore "DMChat/module/user/store"
	"DMChat/service/assets"
	"DMChat/service/events"
	"DMChat/service/storage"
	"DMChat/tools/errs"
	jwtlib "DMChat/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type kickRecorder struct{ kicked []string }

func (k *kickRecorder) Kick(userID, sessionID string) bool {
	k.kicked = append(k.kicked, userID+"/"+sessionID)
	return true
}

type emitRecorder struct{ got []events.Event }

func (e *emitRecorder) Emit(ev events.Event) bool {
	e.got = append(e.got, ev)
	return true
}

func newService(t *testing.T) (*Service, *kickRecorder, *emitRecorder) {
	t.Helper()
	k, em := &kickRecorder{}, &emitRecorder{}
	s := New(userstore.NewMemStore(), storage.NewMemSessionStore(), assets.NewMemStore(),
		jwtlib.Options{Secret: []byte("test-secret"), TTL: time.Hour}, k, em)
	s.cost = bcrypt.MinCost
	return s, k, em
}

func signup(t *testing.T, s *Service, name, email string) *Session {
	t.Helper()
	sess, err := s.Signup(context.Background(), SignupParams{FullName: name, Email: email, Password: "pw-" + name, Bio: "hi"})
	require.NoError(t, err)
	return sess
}

func TestSignupAndLogin(t *testing.T) {
	s, _, em := newService(t)
	ctx := context.Background()

	sess := signup(t, s, "Alice", " Alice@Example.com ")
	assert.Equal(t, "alice@example.com", sess.User.Email)
	assert.Empty(t, sess.User.Password)
	assert.NotEmpty(t, sess.Token)
	require.Len(t, em.got, 1)
	assert.Equal(t, events.TypeUserSignedUp, em.got[0].Type)

	_, err := s.Signup(ctx, SignupParams{FullName: "A", Email: "alice@example.com", Password: "x", Bio: "b"})
	assert.True(t, errs.ErrDuplicateKey.Is(err))

	_, err = s.Signup(ctx, SignupParams{FullName: "B", Email: "b@example.com", Password: "x"})
	assert.True(t, errs.ErrArgs.Is(err))
	assert.Equal(t, "Missing Details", errs.Message(err))

	logged, err := s.Login(ctx, LoginParams{Email: "ALICE@example.com", Password: "pw-Alice"})
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, logged.User.ID)

	_, err = s.Login(ctx, LoginParams{Email: "alice@example.com", Password: "wrong"})
	assert.True(t, errs.ErrUnauthorized.Is(err))
	_, err = s.Login(ctx, LoginParams{Email: "nobody@example.com", Password: "x"})
	assert.True(t, errs.ErrUnauthorized.Is(err))
}

func TestAuthenticateAndLogout(t *testing.T) {
	s, k, _ := newService(t)
	ctx := context.Background()
	sess := signup(t, s, "Alice", "alice@example.com")

	u, sid, err := s.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)
	assert.NotEmpty(t, sid)

	_, _, err = s.Authenticate(ctx, sess.Token+"x")
	assert.True(t, errs.ErrUnauthorized.Is(err))

	require.NoError(t, s.Logout(ctx, u.ID, sid))
	assert.Equal(t, []string{u.ID + "/" + sid}, k.kicked)

	_, _, err = s.Authenticate(ctx, sess.Token)
	assert.True(t, errs.ErrTokenKicked.Is(err))
	assert.True(t, errs.ErrUnauthorized.Is(err))
}

func TestUpdateProfile(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	sess := signup(t, s, "Alice", "alice@example.com")

	pic := "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
	bio, name := "new bio", "Alice B"
	u, err := s.UpdateProfile(ctx, sess.User.ID, ProfileParams{ProfilePic: &pic, Bio: &bio, FullName: &name})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.ProfilePic, assets.RoutePrefix))
	assert.Equal(t, "new bio", u.Bio)
	assert.Equal(t, "Alice B", u.FullName)

	empty := "  "
	_, err = s.UpdateProfile(ctx, sess.User.ID, ProfileParams{FullName: &empty})
	assert.True(t, errs.ErrArgs.Is(err))

	_, err = s.UpdateProfile(ctx, "missing", ProfileParams{Bio: &bio})
	assert.True(t, errs.ErrRecordNotFound.Is(err))
}

func TestListPeers(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	a := signup(t, s, "Alice", "alice@example.com")
	signup(t, s, "Bob", "bob@example.com")
	signup(t, s, "Carol", "carol@work.org")

	peers, err := s.ListPeers(ctx, a.User.ID, "")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "Bob", peers[0].FullName)
	for _, p := range peers {
		assert.Empty(t, p.Password)
	}

	peers, err = s.ListPeers(ctx, a.User.ID, "WORK")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "Carol", peers[0].FullName)
}
