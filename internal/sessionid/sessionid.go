// Package sessionid allocates human-memorable session identifiers of the form
// adjective-noun-NNN (e.g. "brave-otter-412").
package sessionid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

// ErrExhausted is returned when every candidate collided with an existing
// session. With ~1.4M combinations this points at a stuck store, not a full
// ID space.
var ErrExhausted = errors.New("sessionid: could not allocate a unique id")

// ExistsFunc reports whether a session with the given ID already exists.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

var adjectives = []string{
	"amber", "bold", "brave", "brisk", "calm", "civic", "clear", "crisp",
	"eager", "early", "fleet", "fond", "gentle", "glad", "grand", "green",
	"happy", "hardy", "keen", "kind", "light", "lively", "loyal", "lucid",
	"merry", "mild", "noble", "plain", "proud", "quick", "quiet", "rapid",
	"sage", "sharp", "solid", "sound", "spry", "steady", "swift", "warm",
}

var nouns = []string{
	"aspen", "badger", "bison", "cedar", "comet", "crane", "delta", "dove",
	"falcon", "fern", "finch", "fox", "harbor", "heron", "ibis", "lark",
	"linden", "lotus", "lynx", "maple", "meadow", "mesa", "otter", "owl",
	"pine", "plume", "prairie", "raven", "reef", "ridge", "river", "robin",
	"sparrow", "spruce", "summit", "swan", "tern", "tide", "willow", "wren",
}

// Allocator hands out session IDs, retrying against the store on collision.
type Allocator struct {
	exists  ExistsFunc
	retries int
}

// New creates an allocator. retries bounds the number of collision retries
// before NewID fails.
func New(exists ExistsFunc, retries int) *Allocator {
	if retries < 1 {
		retries = 1
	}
	return &Allocator{exists: exists, retries: retries}
}

// NewID returns a fresh session ID not currently present in the store.
func (a *Allocator) NewID(ctx context.Context) (string, error) {
	for i := 0; i < a.retries; i++ {
		id := generate()
		taken, err := a.exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("sessionid: existence check: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}

func generate() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s-%s-%d", adj, noun, 100+rand.Intn(900))
}
