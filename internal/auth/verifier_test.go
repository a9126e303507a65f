package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticVerifier_Valid(t *testing.T) {
	v := NewStaticVerifier("test-secret", "relay-test")

	token, err := IssueStatic("test-secret", "relay-test", "user-42", time.Hour)
	require.NoError(t, err)

	p := v.Verify(context.Background(), token)
	assert.True(t, p.Authenticated)
	assert.Equal(t, "user-42", p.UserID)
}

func TestStaticVerifier_DowngradesToAnonymous(t *testing.T) {
	v := NewStaticVerifier("test-secret", "relay-test")
	ctx := context.Background()

	// Absent token.
	assert.Equal(t, Anonymous, v.Verify(ctx, ""))

	// Malformed token.
	assert.Equal(t, Anonymous, v.Verify(ctx, "not.a.jwt"))

	// Expired token.
	expired, err := IssueStatic("test-secret", "relay-test", "user-42", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, v.Verify(ctx, expired))

	// Wrong secret.
	forged, err := IssueStatic("other-secret", "relay-test", "user-42", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, v.Verify(ctx, forged))

	// Wrong issuer.
	wrongIss, err := IssueStatic("test-secret", "somewhere-else", "user-42", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, v.Verify(ctx, wrongIss))
}
