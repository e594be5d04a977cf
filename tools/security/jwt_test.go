package security

import (
	"testing"
	"time"

	"DMChat/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	iss, err := Generate(opts, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, HashToken(iss.Token), iss.Hash)

	claims, err := Verify(opts, iss.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "s1", claims.SessionID())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	iss, err := Generate(DefaultOptions([]byte("a")), "u1", "")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("b")), iss.Token)
	require.Error(t, err)
	assert.True(t, errs.ErrTokenInvalid.Is(err))
	assert.True(t, errs.ErrUnauthorized.Is(err))
}

func TestVerifyExpired(t *testing.T) {
	opts := Options{Secret: []byte("k"), TTL: time.Nanosecond}
	iss, err := Generate(opts, "u1", "")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = Verify(opts, iss.Token)
	require.Error(t, err)
	assert.True(t, errs.ErrTokenExpired.Is(err))
	assert.Equal(t, 401, errs.HTTPStatus(err))
}

func TestVerifyEmpty(t *testing.T) {
	_, err := Verify(DefaultOptions([]byte("k")), "  ")
	assert.True(t, errs.ErrTokenInvalid.Is(err))
}

func TestUnsupportedAlg(t *testing.T) {
	_, err := Generate(Options{Secret: []byte("k"), Alg: "RS256"}, "u1", "")
	assert.Error(t, err)
}
