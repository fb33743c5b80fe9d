// Package auth verifies the bearer tokens guarding the project and template
// endpoints. The send path does not use tokens, it authenticates by api key.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid bearer token")

type Identity struct {
	Subject string
}

// Authenticator is pluggable on purpose. Production verifies a signed token
// against an issuer, tests substitute a fixed-identity stub, both satisfy
// the same interface.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWT verifies HS256 signed tokens from a trusted issuer.
type JWT struct {
	secret []byte
	issuer string
}

func NewJWT(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer}
}

func (v *JWT) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return &Identity{Subject: sub}, nil
}

// Static accepts exactly one preconfigured token and resolves it to a fixed
// identity. Meant for local setups and tests.
type Static struct {
	Token   string
	Subject string
}

func (s *Static) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" || token != s.Token {
		return nil, ErrInvalidToken
	}
	return &Identity{Subject: s.Subject}, nil
}
