// Package token implements the signed session token codec. Tokens are
// compact JWTs (HS256) carrying the user ID and a 30-day expiry; they are
// transported in an HTTP-only cookie and never persisted server-side.
//
// The three verification failure classes (malformed, expired, bad signature)
// are distinguishable via errors.Is so callers can log them separately, but
// every failure means the same thing to the request: reject it.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification errors. All three are terminal for the request that
// presented the token; they differ only for logging.
var (
	ErrMalformed        = errors.New("token is malformed")
	ErrExpired          = errors.New("token has expired")
	ErrSignatureInvalid = errors.New("token signature is invalid")
)

// claims is the JWT payload. Only the user ID travels in the token --
// roles and profile data are loaded fresh from the database on every
// request so that a role change takes effect immediately.
type claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Codec mints and verifies session tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec creates a token codec. The secret must be non-empty; config.Load
// enforces this before the codec is ever constructed.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// Mint produces a signed token whose payload contains the subject (user ID)
// and an expiry ttl from now.
func (c *Codec) Mint(subject string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		ID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns the embedded
// subject. Failures are classified as ErrMalformed, ErrExpired, or
// ErrSignatureInvalid.
func (c *Codec) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrSignatureInvalid
		default:
			return "", ErrMalformed
		}
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || cl.ID == "" {
		return "", ErrMalformed
	}

	return cl.ID, nil
}
