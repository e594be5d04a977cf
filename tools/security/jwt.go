package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"DMChat/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options 控制签名与TTL等参数。
type Options struct {
	Secret []byte        // HMAC key
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token lifetime (default 7 days)
}

const defaultTTL = 7 * 24 * time.Hour

type JWTClaims struct {
	jwtlib.MapClaims
}

func (c *JWTClaims) UserID() string {
	sub, _ := c.MapClaims["sub"].(string)
	return sub
}

func (c *JWTClaims) SessionID() string {
	sid, _ := c.MapClaims["sid"].(string)
	return sid
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: defaultTTL}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Issued is the result of Generate. Hash is what the session store keeps; the raw token never is.
type Issued struct {
	Token    string
	Hash     string
	ExpireAt time.Time
}

func Generate(opts Options, userID, sessionID string) (Issued, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return Issued{}, err
	}
	if len(opts.Secret) == 0 {
		return Issued{}, errors.New("jwt secret is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if sessionID != "" {
		claims["sid"] = sessionID
	}

	tok := jwtlib.NewWithClaims(method, claims)
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, Hash: HashToken(signed), ExpireAt: exp}, nil
}

// Verify checks signature and time claims. Failures come back as errs.ErrTokenExpired or errs.ErrTokenInvalid.
func Verify(opts Options, token string) (*JWTClaims, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("empty token")
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	}, jwtlib.WithValidMethods([]string{method.Alg()}))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, errs.ErrTokenExpired.WrapErr(err, "token expired")
		}
		return nil, errs.ErrTokenInvalid.WrapErr(err, "token invalid")
	}
	if !parsed.Valid {
		return nil, errs.ErrTokenInvalid.WrapMsg("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.ErrTokenInvalid.WrapMsg("claims type mismatch")
	}
	c := &JWTClaims{claims}
	if c.UserID() == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("token has no subject")
	}
	return c, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
