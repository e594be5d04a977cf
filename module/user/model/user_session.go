package model

import "time"

// UserSession is the server-side record behind an issued token. Only the token hash is kept.
type UserSession struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	LoginTime time.Time `json:"login_time"`
	ExpireAt  time.Time `json:"expire_at"`
}

func (s *UserSession) Expired(now time.Time) bool {
	return !s.ExpireAt.IsZero() && !now.Before(s.ExpireAt)
}

func (s *UserSession) TTL(now time.Time) time.Duration {
	if s.ExpireAt.IsZero() {
		return 0
	}
	return s.ExpireAt.Sub(now)
}
