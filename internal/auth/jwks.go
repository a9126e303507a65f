package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// JWKSVerifier verifies RS256 identity tokens against the issuer's published
// key set. The key set is cached for a TTL and refreshes are single-flighted,
// so a burst of connections with an unknown kid costs one fetch.
type JWKSVerifier struct {
	jwksURL  string
	issuer   string
	audience string
	ttl      time.Duration

	httpClient *http.Client
	now        func() time.Time
	group      singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWKSVerifier JWKS 기반 검증기 생성
func NewJWKSVerifier(jwksURL, issuer, audience string, ttl time.Duration) *JWKSVerifier {
	return &JWKSVerifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) Principal {
	if tokenString == "" {
		return Anonymous
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidToken
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		log.Printf("[Auth] Token rejected, downgrading to anonymous: %v", err)
		return Anonymous
	}

	// Identity tokens only; access tokens carry token_use=access.
	if use, _ := claims["token_use"].(string); use != "" && use != "id" {
		log.Printf("[Auth] Token rejected (token_use=%s), downgrading to anonymous", use)
		return Anonymous
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Anonymous
	}
	return Principal{UserID: sub, Authenticated: true}
}

// key returns the public key for kid, refreshing the cached set when it is
// stale or the kid is unknown (key rotation).
func (v *JWKSVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := v.now().Sub(v.fetchedAt) < v.ttl
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	_, err, _ := v.group.Do("jwks", func() (interface{}, error) {
		return nil, v.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: unknown signing key %q", kid)
	}
	return key, nil
}

type jwkSet struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: fetch jwks: status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("auth: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			log.Printf("[Auth] Skipping malformed JWK %s: %v", k.Kid, err)
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = v.now()
	v.mu.Unlock()

	log.Printf("[Auth] Refreshed JWKS: %d keys", len(keys))
	return nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
