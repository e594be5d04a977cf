package storage

import (
	"context"
	"os"
	"testing"
	"time"

	usermodel "DMChat/module/user/model"
	redisx "DMChat/service/storage/redis"
	"DMChat/tools/errs"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionStores(t *testing.T) map[string]SessionStore {
	out := map[string]SessionStore{"memory": NewMemSessionStore()}
	if addr := os.Getenv("DMCHAT_TEST_REDIS_ADDR"); addr != "" {
		rdb, err := redisx.NewClient(context.Background(), redisx.Config{Addr: addr})
		require.NoError(t, err)
		s := NewRedisSessionStore(rdb, time.Hour)
		t.Cleanup(func() { _ = s.Close() })
		out["redis"] = s
	}
	return out
}

func TestSessionStore(t *testing.T) {
	for name, s := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			uid := uuid.NewString()
			mk := func() *usermodel.UserSession {
				return &usermodel.UserSession{
					SessionID: uuid.NewString(),
					UserID:    uid,
					TokenHash: "sha256:x",
					LoginTime: time.Now(),
					ExpireAt:  time.Now().Add(time.Hour),
				}
			}
			s1, s2 := mk(), mk()
			require.NoError(t, s.Save(ctx, s1))
			require.NoError(t, s.Save(ctx, s2))

			got, err := s.Get(ctx, s1.SessionID)
			require.NoError(t, err)
			assert.Equal(t, uid, got.UserID)
			assert.Equal(t, "sha256:x", got.TokenHash)

			require.NoError(t, s.Delete(ctx, uid, s1.SessionID))
			_, err = s.Get(ctx, s1.SessionID)
			assert.True(t, errs.ErrRecordNotFound.Is(err))

			n, err := s.DeleteUser(ctx, uid)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			_, err = s.Get(ctx, s2.SessionID)
			assert.True(t, errs.ErrRecordNotFound.Is(err))

			assert.Error(t, s.Save(ctx, &usermodel.UserSession{}))
		})
	}
}

func TestMemSessionExpiry(t *testing.T) {
	s := NewMemSessionStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Save(context.Background(), &usermodel.UserSession{
		SessionID: "s", UserID: "u", ExpireAt: now.Add(time.Minute),
	}))
	_, err := s.Get(context.Background(), "s")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(context.Background(), "s")
	assert.True(t, errs.ErrRecordNotFound.Is(err))
}
