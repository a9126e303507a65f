// Package store holds the session and connection records behind the control
// plane. It is the only shared mutable state in the process; the deployed
// system backs it with a managed key-value service, tests and the default
// build use the in-memory implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-backend/internal/model"
)

var (
	// ErrNotFound 세션 또는 연결 없음
	ErrNotFound = errors.New("store: not found")
	// ErrSessionNotActive 종료된 세션에 대한 쓰기 거부
	ErrSessionNotActive = errors.New("store: session not active")
)

// SpeakerConflictError is returned by PutConnection when the session already
// has a live speaker. The caller evicts the prior speaker (last-writer-wins)
// and retries.
type SpeakerConflictError struct {
	PriorConnectionID string
}

func (e *SpeakerConflictError) Error() string {
	return fmt.Sprintf("store: session already has speaker connection %s", e.PriorConnectionID)
}

// Store is the session/connection keyed store. Every call is atomic on its
// own; no multi-key transactions. ListListenerLanguages and LookupConnections
// are linearizable per session with respect to DeleteConnection.
type Store interface {
	PutSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	UpdateSession(ctx context.Context, sessionID string, mutate func(*model.Session)) (*model.Session, error)
	// EndSession transitions the session to ended, removes all of its
	// connections, and returns the connection IDs that were removed.
	EndSession(ctx context.Context, sessionID string) ([]string, error)

	// PutConnection rejects when the session is missing or not active, and
	// returns *SpeakerConflictError when a second speaker arrives.
	PutConnection(ctx context.Context, c *model.Connection) error
	GetConnection(ctx context.Context, connectionID string) (*model.Connection, error)
	DeleteConnection(ctx context.Context, connectionID string) error

	// ListListenerLanguages returns the distinct target languages across the
	// session's live listener connections.
	ListListenerLanguages(ctx context.Context, sessionID string) ([]string, error)
	// LookupConnections returns the live listener connection IDs for
	// (sessionID, targetLanguage).
	LookupConnections(ctx context.Context, sessionID, targetLanguage string) ([]string, error)

	// ExpiredSessions and ExpiredConnections feed the TTL reaper. Session and
	// connection TTLs are independent; the earlier of the two wins.
	ExpiredSessions(ctx context.Context, now time.Time) ([]string, error)
	ExpiredConnections(ctx context.Context, now time.Time) ([]string, error)
}
