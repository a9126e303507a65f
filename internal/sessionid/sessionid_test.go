package sessionid

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idShape = regexp.MustCompile(`^[a-z]+-[a-z]+-[1-9][0-9]{2}$`)

func TestNewID_Shape(t *testing.T) {
	alloc := New(func(ctx context.Context, id string) (bool, error) {
		return false, nil
	}, 5)

	for i := 0; i < 50; i++ {
		id, err := alloc.NewID(context.Background())
		require.NoError(t, err)
		assert.Regexp(t, idShape, id)
	}
}

func TestNewID_RetriesOnCollision(t *testing.T) {
	calls := 0
	alloc := New(func(ctx context.Context, id string) (bool, error) {
		calls++
		return calls < 3, nil // first two candidates collide
	}, 5)

	id, err := alloc.NewID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, calls)
}

func TestNewID_Exhausted(t *testing.T) {
	alloc := New(func(ctx context.Context, id string) (bool, error) {
		return true, nil // everything collides
	}, 4)

	_, err := alloc.NewID(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestNewID_StoreError(t *testing.T) {
	boom := errors.New("store down")
	alloc := New(func(ctx context.Context, id string) (bool, error) {
		return false, boom
	}, 5)

	_, err := alloc.NewID(context.Background())
	assert.ErrorIs(t, err, boom)
}
