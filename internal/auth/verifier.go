// Package auth verifies speaker identity tokens. Verification never rejects a
// connection: any failure downgrades the caller to an anonymous principal and
// role policy is decided downstream.
package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token has expired")
)

// Principal 검증 결과 신원
type Principal struct {
	UserID        string
	Authenticated bool
}

// Anonymous is the principal for absent, expired, or malformed tokens.
var Anonymous = Principal{}

// Verifier turns a raw token into a principal. Implementations must not
// return errors; failures map to Anonymous.
type Verifier interface {
	Verify(ctx context.Context, token string) Principal
}

// StaticVerifier verifies HS256 tokens against a shared secret. Used in local
// runs and tests; production uses the JWKS verifier.
type StaticVerifier struct {
	secret []byte
	issuer string
}

// NewStaticVerifier StaticVerifier 생성
func NewStaticVerifier(secret, issuer string) *StaticVerifier {
	return &StaticVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *StaticVerifier) Verify(_ context.Context, tokenString string) Principal {
	if tokenString == "" {
		return Anonymous
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		log.Printf("[Auth] Token rejected, downgrading to anonymous: %v", err)
		return Anonymous
	}

	return Principal{UserID: claims.Subject, Authenticated: true}
}

// IssueStatic signs an HS256 token for the given user. Test helper and dev
// tooling only.
func IssueStatic(secret, issuer, userID string, ttl time.Duration) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
