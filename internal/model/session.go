package model

import "time"

// SessionStatus 세션 상태
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// Role 연결 역할
type Role string

const (
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

// Session is one logical broadcast: a single speaker, any number of
// listeners, addressed by SessionID.
type Session struct {
	SessionID      string        `json:"sessionId"`
	OwnerID        string        `json:"ownerId,omitempty"` // empty for anonymous speaker sessions
	SourceLanguage string        `json:"sourceLanguage"`
	// ConfiguredTargets is advisory; the translated set is derived from live
	// listeners at batch time.
	ConfiguredTargets []string      `json:"configuredTargets,omitempty"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	LastActivityAt    time.Time     `json:"lastActivityAt"`
	ExpiresAt         time.Time     `json:"expiresAt"`
}

// Connection is a single live WebSocket peer bound to one session.
type Connection struct {
	ConnectionID   string    `json:"connectionId"`
	SessionID      string    `json:"sessionId"`
	Role           Role      `json:"role"`
	TargetLanguage string    `json:"targetLanguage,omitempty"` // set iff RoleListener
	UserID         string    `json:"userId,omitempty"`         // empty for anonymous
	ConnectedAt    time.Time `json:"connectedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}
