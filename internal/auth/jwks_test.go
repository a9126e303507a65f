package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJWKSServer(t *testing.T, pub *rsa.PublicKey, kid string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		set := map[string]any{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSVerifier_Valid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, &key.PublicKey, "kid-1", nil)
	defer srv.Close()

	v := NewJWKSVerifier(srv.URL, "https://issuer.example", "relay-app", time.Hour)

	token := signRS256(t, key, "kid-1", jwt.MapClaims{
		"sub":       "user-7",
		"iss":       "https://issuer.example",
		"aud":       "relay-app",
		"token_use": "id",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	p := v.Verify(context.Background(), token)
	assert.True(t, p.Authenticated)
	assert.Equal(t, "user-7", p.UserID)
}

func TestJWKSVerifier_Downgrades(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := newJWKSServer(t, &key.PublicKey, "kid-1", nil)
	defer srv.Close()

	v := NewJWKSVerifier(srv.URL, "https://issuer.example", "relay-app", time.Hour)
	ctx := context.Background()

	base := jwt.MapClaims{
		"sub":       "user-7",
		"iss":       "https://issuer.example",
		"aud":       "relay-app",
		"token_use": "id",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}

	expired := jwt.MapClaims{}
	for k, val := range base {
		expired[k] = val
	}
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	assert.Equal(t, Anonymous, v.Verify(ctx, signRS256(t, key, "kid-1", expired)))

	wrongAud := jwt.MapClaims{}
	for k, val := range base {
		wrongAud[k] = val
	}
	wrongAud["aud"] = "other-app"
	assert.Equal(t, Anonymous, v.Verify(ctx, signRS256(t, key, "kid-1", wrongAud)))

	accessUse := jwt.MapClaims{}
	for k, val := range base {
		accessUse[k] = val
	}
	accessUse["token_use"] = "access"
	assert.Equal(t, Anonymous, v.Verify(ctx, signRS256(t, key, "kid-1", accessUse)))

	// Unknown signing key after rotation exhausts one refresh, then fails.
	assert.Equal(t, Anonymous, v.Verify(ctx, signRS256(t, key, "kid-unknown", base)))

	// And a valid token still passes afterwards.
	assert.True(t, v.Verify(ctx, signRS256(t, key, "kid-1", base)).Authenticated)
}

func TestJWKSVerifier_CachesKeySet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits atomic.Int64
	srv := newJWKSServer(t, &key.PublicKey, "kid-1", &hits)
	defer srv.Close()

	v := NewJWKSVerifier(srv.URL, "https://issuer.example", "relay-app", time.Hour)

	claims := jwt.MapClaims{
		"sub":       "user-7",
		"iss":       "https://issuer.example",
		"aud":       "relay-app",
		"token_use": "id",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}

	for i := 0; i < 5; i++ {
		p := v.Verify(context.Background(), signRS256(t, key, "kid-1", claims))
		require.True(t, p.Authenticated)
	}
	assert.Equal(t, int64(1), hits.Load(), "key set should be fetched once within TTL")
}
