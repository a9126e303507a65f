package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/model"
)

func activeSession(id string) *model.Session {
	now := time.Now()
	return &model.Session{
		SessionID:      id,
		SourceLanguage: "en",
		Status:         model.StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(4 * time.Hour),
	}
}

func listener(connID, sessionID, lang string) *model.Connection {
	now := time.Now()
	return &model.Connection{
		ConnectionID:   connID,
		SessionID:      sessionID,
		Role:           model.RoleListener,
		TargetLanguage: lang,
		ConnectedAt:    now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(2 * time.Hour),
	}
}

func speaker(connID, sessionID string) *model.Connection {
	c := listener(connID, sessionID, "")
	c.Role = model.RoleSpeaker
	return c
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.PutSession(ctx, activeSession("sess-1")))

	got, err := m.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "en", got.SourceLanguage)
	assert.Equal(t, model.StatusActive, got.Status)

	_, err = m.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutConnection_RequiresActiveSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.PutConnection(ctx, listener("c1", "missing", "fr"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.PutSession(ctx, activeSession("sess-1")))
	_, err = m.EndSession(ctx, "sess-1")
	require.NoError(t, err)

	err = m.PutConnection(ctx, listener("c1", "sess-1", "fr"))
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestSpeakerConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutSession(ctx, activeSession("sess-1")))

	require.NoError(t, m.PutConnection(ctx, speaker("spk-1", "sess-1")))

	err := m.PutConnection(ctx, speaker("spk-2", "sess-1"))
	var conflict *SpeakerConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "spk-1", conflict.PriorConnectionID)

	// After evicting the prior speaker the new one is accepted.
	require.NoError(t, m.DeleteConnection(ctx, "spk-1"))
	assert.NoError(t, m.PutConnection(ctx, speaker("spk-2", "sess-1")))
}

func TestListListenerLanguages_DedupAndReap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutSession(ctx, activeSession("sess-1")))

	require.NoError(t, m.PutConnection(ctx, listener("c1", "sess-1", "fr")))
	require.NoError(t, m.PutConnection(ctx, listener("c2", "sess-1", "fr")))
	require.NoError(t, m.PutConnection(ctx, listener("c3", "sess-1", "es")))

	langs, err := m.ListListenerLanguages(ctx, "sess-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fr", "es"}, langs)

	// One of two fr listeners leaves: fr stays.
	require.NoError(t, m.DeleteConnection(ctx, "c1"))
	langs, err = m.ListListenerLanguages(ctx, "sess-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fr", "es"}, langs)

	// Last fr listener leaves: fr is gone by the next call.
	require.NoError(t, m.DeleteConnection(ctx, "c2"))
	langs, err = m.ListListenerLanguages(ctx, "sess-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"es"}, langs)
}

func TestLookupConnections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutSession(ctx, activeSession("sess-1")))
	require.NoError(t, m.PutConnection(ctx, listener("c1", "sess-1", "fr")))
	require.NoError(t, m.PutConnection(ctx, listener("c2", "sess-1", "fr")))
	require.NoError(t, m.PutConnection(ctx, listener("c3", "sess-1", "es")))

	conns, err := m.LookupConnections(ctx, "sess-1", "fr")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, conns)

	conns, err = m.LookupConnections(ctx, "sess-1", "de")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestEndSession_ReturnsAndRemovesConnections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutSession(ctx, activeSession("sess-1")))
	require.NoError(t, m.PutConnection(ctx, speaker("spk", "sess-1")))
	require.NoError(t, m.PutConnection(ctx, listener("c1", "sess-1", "fr")))

	removed, err := m.EndSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"spk", "c1"}, removed)

	_, err = m.GetConnection(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	langs, err := m.ListListenerLanguages(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, langs)

	got, err := m.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, got.Status)
}

func TestDeleteConnection_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.NoError(t, m.DeleteConnection(ctx, "never-existed"))
}

func TestExpiry_IndependentTTLs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s := activeSession("sess-1")
	s.ExpiresAt = time.Now().Add(1 * time.Hour)
	require.NoError(t, m.PutSession(ctx, s))

	c := listener("c1", "sess-1", "fr")
	c.ExpiresAt = time.Now().Add(-1 * time.Minute) // connection already expired
	require.NoError(t, m.PutConnection(ctx, c))

	now := time.Now()
	expiredSessions, err := m.ExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expiredSessions)

	expiredConns, err := m.ExpiredConnections(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, expiredConns)

	// Session TTL fires later, independently of the connection's.
	expiredSessions, err = m.ExpiredSessions(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, expiredSessions)
}
