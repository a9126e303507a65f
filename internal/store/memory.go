package store

import (
	"context"
	"sync"
	"time"

	"relay-backend/internal/model"
)

// Memory is the in-process Store. A single RWMutex serializes every call,
// which gives the per-session linearizability the worker's language lookups
// rely on.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[string]*model.Session
	connections map[string]*model.Connection
	// byLang: sessionID -> targetLanguage -> connectionID set. Holds listener
	// connections only; reaped together with DeleteConnection.
	byLang map[string]map[string]map[string]struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*model.Session),
		connections: make(map[string]*model.Connection),
		byLang:      make(map[string]map[string]map[string]struct{}),
	}
}

func (m *Memory) PutSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateSession(_ context.Context, sessionID string, mutate func(*model.Session)) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	mutate(s)
	cp := *s
	return &cp, nil
}

func (m *Memory) EndSession(_ context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = model.StatusEnded

	var removed []string
	for id, c := range m.connections {
		if c.SessionID == sessionID {
			removed = append(removed, id)
			delete(m.connections, id)
		}
	}
	delete(m.byLang, sessionID)
	return removed, nil
}

func (m *Memory) PutConnection(_ context.Context, c *model.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[c.SessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != model.StatusActive {
		return ErrSessionNotActive
	}

	if c.Role == model.RoleSpeaker {
		for id, existing := range m.connections {
			if existing.SessionID == c.SessionID && existing.Role == model.RoleSpeaker && id != c.ConnectionID {
				return &SpeakerConflictError{PriorConnectionID: id}
			}
		}
	}

	cp := *c
	m.connections[c.ConnectionID] = &cp
	s.LastActivityAt = c.ConnectedAt

	if c.Role == model.RoleListener {
		langs, ok := m.byLang[c.SessionID]
		if !ok {
			langs = make(map[string]map[string]struct{})
			m.byLang[c.SessionID] = langs
		}
		conns, ok := langs[c.TargetLanguage]
		if !ok {
			conns = make(map[string]struct{})
			langs[c.TargetLanguage] = conns
		}
		conns[c.ConnectionID] = struct{}{}
	}
	return nil
}

func (m *Memory) GetConnection(_ context.Context, connectionID string) (*model.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.connections[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) DeleteConnection(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[connectionID]
	if !ok {
		// Idempotent: a disconnect handler may run after an eviction already
		// removed the row.
		return nil
	}
	delete(m.connections, connectionID)

	if c.Role == model.RoleListener {
		if langs, ok := m.byLang[c.SessionID]; ok {
			if conns, ok := langs[c.TargetLanguage]; ok {
				delete(conns, connectionID)
				if len(conns) == 0 {
					delete(langs, c.TargetLanguage)
				}
			}
			if len(langs) == 0 {
				delete(m.byLang, c.SessionID)
			}
		}
	}
	return nil
}

func (m *Memory) ListListenerLanguages(_ context.Context, sessionID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	langs := m.byLang[sessionID]
	out := make([]string, 0, len(langs))
	for lang, conns := range langs {
		if len(conns) > 0 {
			out = append(out, lang)
		}
	}
	return out, nil
}

func (m *Memory) LookupConnections(_ context.Context, sessionID, targetLanguage string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.byLang[sessionID][targetLanguage]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) ExpiredSessions(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id, s := range m.sessions {
		if s.Status == model.StatusActive && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) ExpiredConnections(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id, c := range m.connections {
		if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
			out = append(out, id)
		}
	}
	return out, nil
}
