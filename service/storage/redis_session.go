package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	usermodel "DMChat/module/user/model"
	"DMChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// 会话键：dm:sess:<sid> → JSON，TTL = 会话剩余时间
// 用户索引：dm:user:sess:<uid> ZSET(member=会话键, score=expireAt unix)
func sessionKey(sid string) string   { return "dm:sess:" + sid }
func userIndexKey(uid string) string { return "dm:user:sess:" + uid }

// KEYS[1] = user index key
// 返回：被删除的会话键数组
const luaLogoutAll = `
local userZ = KEYS[1]
local members = redis.call("ZRANGE", userZ, 0, -1)
for _, k in ipairs(members) do
  redis.call("DEL", k)
end
redis.call("DEL", userZ)
return members
`

// KEYS[1] = user index key, KEYS[2] = session key
// ARGV[1] = session json, ARGV[2] = ttl seconds, ARGV[3] = expireAt unix, ARGV[4] = now unix
const luaSaveSession = `
redis.call("SET", KEYS[2], ARGV[1], "EX", tonumber(ARGV[2]))
redis.call("ZADD", KEYS[1], tonumber(ARGV[3]), KEYS[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", tonumber(ARGV[4]))
local ttl = redis.call("TTL", KEYS[1])
if ttl < tonumber(ARGV[2]) then
  redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
end
return 1
`

type RedisSessionStore struct {
	rdb        *redis.Client
	luaSave    *redis.Script
	luaLogout  *redis.Script
	now        func() time.Time
	defaultTTL time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, defaultTTL time.Duration) *RedisSessionStore {
	if defaultTTL <= 0 {
		defaultTTL = 7 * 24 * time.Hour
	}
	return &RedisSessionStore{
		rdb:        rdb,
		luaSave:    redis.NewScript(luaSaveSession),
		luaLogout:  redis.NewScript(luaLogoutAll),
		now:        time.Now,
		defaultTTL: defaultTTL,
	}
}

func (r *RedisSessionStore) Save(ctx context.Context, s *usermodel.UserSession) error {
	if s == nil || s.SessionID == "" || s.UserID == "" {
		return errs.ErrArgs.WrapMsg("session id and user id are required")
	}
	now := r.now()
	if s.ExpireAt.IsZero() {
		s.ExpireAt = now.Add(r.defaultTTL)
	}
	ttl := s.TTL(now)
	if ttl <= 0 {
		return errs.ErrArgs.WrapMsg("session already expired", "sid", s.SessionID)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return errs.ErrInternalServer.WrapErr(err, "encode session")
	}
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	err = r.luaSave.Run(ctx, r.rdb,
		[]string{userIndexKey(s.UserID), sessionKey(s.SessionID)},
		string(raw), secs, s.ExpireAt.Unix(), now.Unix()).Err()
	if err != nil {
		return errs.ErrStore.WrapErr(err, "save session", "sid", s.SessionID)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) (*usermodel.UserSession, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.ErrRecordNotFound.WrapMsg("session not found", "sid", sessionID)
	}
	if err != nil {
		return nil, errs.ErrStore.WrapErr(err, "get session", "sid", sessionID)
	}
	var s usermodel.UserSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errs.ErrStore.WrapErr(err, "decode session", "sid", sessionID)
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, sessionKey(sessionID))
		p.ZRem(ctx, userIndexKey(userID), sessionKey(sessionID))
		return nil
	})
	if err != nil {
		return errs.ErrStore.WrapErr(err, "delete session", "sid", sessionID)
	}
	return nil
}

func (r *RedisSessionStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	members, err := r.luaLogout.Run(ctx, r.rdb, []string{userIndexKey(userID)}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, errs.ErrStore.WrapErr(err, "delete user sessions", "user", userID)
	}
	return len(members), nil
}

// Close releases the client; the store owns it once constructed by bootstrap.
func (r *RedisSessionStore) Close() error {
	return r.rdb.Close()
}
