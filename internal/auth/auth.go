// Package auth issues and verifies the tokens that turn a request into an
// explicit Actor. Services never authorize from ambient request state, only
// from the Actor the API layer hands them.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/quizcore/internal/domain"
	"github.com/victornm/quizcore/internal/errors"
)

type Config struct {
	Secret string
	TTL    time.Duration
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(c Config) *Issuer {
	ttl := c.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &Issuer{
		secret: []byte(c.Secret),
		ttl:    ttl,
	}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for the student.
func (i *Issuer) Issue(st domain.Student) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: st.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   st.StudentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify parses a token back into an Actor.
func (i *Issuer) Verify(token string) (domain.Actor, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return domain.Actor{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err))
	}

	return domain.Actor{
		StudentID: c.Subject,
		Role:      c.Role,
	}, nil
}
