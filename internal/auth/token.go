package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (l *Local) IssueToken(id Identity) (string, error) {
	return IssueToken(l.secret, id, l.ttl, l.now())
}

func (l *Local) VerifyToken(token string) (Identity, error) {
	return VerifyToken(l.secret, token, l.now())
}

// IssueToken signs an HS256 session token for id.
func IssueToken(secret []byte, id Identity, ttl time.Duration, now time.Time) (string, error) {
	if id.UID == "" {
		return "", fmt.Errorf("issue token: missing uid")
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// VerifyToken checks signature, algorithm and expiry relative to now.
func VerifyToken(secret []byte, token string, now time.Time) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: c.Subject, Name: c.Name, Email: c.Email}, nil
}
