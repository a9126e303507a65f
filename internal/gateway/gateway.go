// Package gateway is the WebSocket control plane: it admits speakers and
// listeners into sessions, feeds speaker audio to the ingest bus, and fans
// translated-chunk notifications out to listeners.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"relay-backend/internal/auth"
	"relay-backend/internal/config"
	"relay-backend/internal/ingest"
	"relay-backend/internal/langs"
	"relay-backend/internal/model"
	"relay-backend/internal/store"
)

const (
	closeNormal    = 1000
	closeGoingAway = 1001
)

// Gateway owns the live connection registry. Everything that needs to reach a
// connected client (worker notifications, session end, the TTL reaper) goes
// through it.
type Gateway struct {
	wsCfg   config.WebSocketConfig
	sessCfg config.SessionConfig

	store     store.Store
	bus       *ingest.Bus
	validator *langs.Validator
	verifier  auth.Verifier

	mu      sync.RWMutex
	clients map[string]*client

	// onEnd, when set, runs once per ended session (archival hook).
	onEnd func(sess *model.Session, reason string)

	now func() time.Time
}

// SetOnEnd registers a hook invoked after a session ends. Must be called
// before the gateway starts accepting connections.
func (g *Gateway) SetOnEnd(hook func(sess *model.Session, reason string)) {
	g.onEnd = hook
}

func New(wsCfg config.WebSocketConfig, sessCfg config.SessionConfig, st store.Store, bus *ingest.Bus, validator *langs.Validator, verifier auth.Verifier) *Gateway {
	return &Gateway{
		wsCfg:     wsCfg,
		sessCfg:   sessCfg,
		store:     st,
		bus:       bus,
		validator: validator,
		verifier:  verifier,
		clients:   make(map[string]*client),
		now:       time.Now,
	}
}

// Handle runs one WebSocket connection from admission to disconnect. token,
// sessionID and targetLanguage come from the upgrade request's query string;
// a present targetLanguage makes the connection a listener, an absent one a
// speaker claim.
func (g *Gateway) Handle(conn Conn, token, sessionID, targetLanguage string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Gateway] Connection handler panic: %v", r)
			_ = conn.Close()
		}
	}()

	ctx := context.Background()
	principal := g.verifier.Verify(ctx, token)

	sess, err := g.store.GetSession(ctx, sessionID)
	if err != nil || sess.Status != model.StatusActive {
		refuse(conn, model.CloseNotFound, "session not found")
		return
	}

	role := model.RoleSpeaker
	if targetLanguage != "" {
		role = model.RoleListener
		if err := g.validator.ValidatePair(sess.SourceLanguage, targetLanguage); err != nil {
			refuse(conn, model.CloseBadRequest, err.Error())
			return
		}
	} else if sess.OwnerID != "" && principal.UserID != sess.OwnerID {
		// Owned sessions accept only their owner as speaker. Anonymous
		// sessions take the first speaker to show up.
		refuse(conn, model.ClosePolicyViolation, "not the session owner")
		return
	}

	now := g.now()
	rec := &model.Connection{
		ConnectionID:   uuid.New().String(),
		SessionID:      sessionID,
		Role:           role,
		TargetLanguage: targetLanguage,
		UserID:         principal.UserID,
		ConnectedAt:    now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(g.sessCfg.ConnectionTTL),
	}

	if err := g.admit(ctx, rec); err != nil {
		var conflict *store.SpeakerConflictError
		switch {
		case errors.As(err, &conflict):
			refuse(conn, model.ClosePolicyViolation, "session already has a speaker")
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrSessionNotActive):
			refuse(conn, model.CloseNotFound, "session not found")
		default:
			refuse(conn, model.CloseBadRequest, "admission failed")
		}
		return
	}

	c := newClient(rec.ConnectionID, sessionID, role, targetLanguage, conn, g.wsCfg.SendQueueSize, g.reapGone)
	g.mu.Lock()
	g.clients[rec.ConnectionID] = c
	g.mu.Unlock()

	go c.writeLoop(g.wsCfg.SendTimeout)

	log.Printf("[Gateway] Connected %s to %s as %s (lang=%s, auth=%t)",
		rec.ConnectionID, sessionID, role, targetLanguage, principal.Authenticated)

	g.sendJSON(c, model.SessionJoined{
		Type:         "sessionJoined",
		SessionID:    sessionID,
		ConnectionID: rec.ConnectionID,
		ServerTime:   now.UnixMilli(),
	})

	g.readLoop(c)
}

// admit writes the connection record, evicting a prior speaker once when the
// new claim conflicts (last writer wins).
func (g *Gateway) admit(ctx context.Context, rec *model.Connection) error {
	err := g.store.PutConnection(ctx, rec)
	var conflict *store.SpeakerConflictError
	if !errors.As(err, &conflict) {
		return err
	}

	log.Printf("[Gateway] Evicting prior speaker %s from %s", conflict.PriorConnectionID, rec.SessionID)
	if c := g.takeClient(conflict.PriorConnectionID); c != nil {
		c.shutdown(model.ClosePolicyViolation, "replaced by a new speaker")
	}
	if err := g.store.DeleteConnection(ctx, conflict.PriorConnectionID); err != nil {
		return err
	}
	return g.store.PutConnection(ctx, rec)
}

func (g *Gateway) readLoop(c *client) {
	ctx := context.Background()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			g.disconnect(ctx, c, "connection closed")
			return
		}

		var msg model.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.sendError(c, "badMessage", "malformed frame")
			continue
		}

		switch msg.Action {
		case model.ActionJoinSession:
			// Idempotent re-join; the client may resend after a blip. The
			// binding is fixed at upgrade time, so naming another session or
			// target language is a protocol error, not a rebind.
			if (msg.SessionID != "" && msg.SessionID != c.sessionID) ||
				(msg.TargetLanguage != "" && msg.TargetLanguage != c.targetLang) {
				g.sendError(c, "protocolError", "joinSession does not match this connection")
				continue
			}
			g.sendJSON(c, model.SessionJoined{
				Type:         "sessionJoined",
				SessionID:    c.sessionID,
				ConnectionID: c.connectionID,
				ServerTime:   g.now().UnixMilli(),
			})
		case model.ActionAudioChunk:
			g.handleAudioChunk(c, &msg)
		case model.ActionLeave:
			g.disconnect(ctx, c, "client left")
			return
		default:
			g.sendError(c, "unknownAction", "unknown action "+msg.Action)
		}
	}
}

func (g *Gateway) handleAudioChunk(c *client, msg *model.InboundMessage) {
	if c.role != model.RoleSpeaker {
		g.sendError(c, "notSpeaker", "only the speaker sends audio")
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil || len(pcm) == 0 {
		g.sendError(c, "badAudioChunk", "audioData must be non-empty base64")
		return
	}

	ts := g.now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}
	sampleRate := msg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	channels := msg.Channels
	if channels == 0 {
		channels = 1
	}

	g.bus.Append(ingest.Frame{
		SessionID:  c.sessionID,
		Data:       pcm,
		Timestamp:  ts,
		SampleRate: sampleRate,
		Channels:   channels,
		Encoding:   msg.Encoding,
	})
}

// disconnect tears one connection down. A speaker leaving ends the whole
// session; a listener leaving affects only itself. Safe to call twice.
func (g *Gateway) disconnect(ctx context.Context, c *client, reason string) {
	if g.takeClient(c.connectionID) == nil {
		return // already gone
	}
	log.Printf("[Gateway] Disconnect %s from %s (%s)", c.connectionID, c.sessionID, reason)

	if c.role == model.RoleSpeaker {
		c.shutdown(closeNormal, reason)
		if err := g.EndSession(ctx, c.sessionID, "speaker_disconnected"); err != nil {
			log.Printf("[Gateway] End session %s failed: %v", c.sessionID, err)
		}
		return
	}

	if err := g.store.DeleteConnection(ctx, c.connectionID); err != nil {
		log.Printf("[Gateway] Delete connection %s failed: %v", c.connectionID, err)
	}
	c.shutdown(closeNormal, reason)
}

// reapGone handles a client whose write loop died mid-stream.
func (g *Gateway) reapGone(c *client) {
	g.disconnect(context.Background(), c, "write failure")
}

// EndSession ends the session, cancels its buffered audio, notifies every
// remaining connection with sessionEnded and closes them. Idempotent; also
// the path for REST-initiated end and TTL expiry.
func (g *Gateway) EndSession(ctx context.Context, sessionID, reason string) error {
	sess, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if sess.Status != model.StatusActive {
		return nil
	}

	connIDs, err := g.store.EndSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	g.bus.CancelSession(sessionID)

	frame, _ := json.Marshal(model.SessionEnded{
		Type:      "sessionEnded",
		SessionID: sessionID,
		Reason:    reason,
	})
	for _, id := range connIDs {
		if c := g.takeClient(id); c != nil {
			c.shutdown(closeNormal, reason, frame)
		}
	}
	log.Printf("[Gateway] Session %s ended (%s), %d connections closed", sessionID, reason, len(connIDs))

	if g.onEnd != nil {
		go g.onEnd(sess, reason)
	}
	return nil
}

// Notify implements the worker's notifier port: best-effort fan-out of one
// payload to a set of live connections.
func (g *Gateway) Notify(_ context.Context, connectionIDs []string, payload any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Gateway] Marshal notification failed: %v", err)
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range connectionIDs {
		if c, ok := g.clients[id]; ok {
			c.enqueue(frame)
		}
	}
}

// RunReaper sweeps expired sessions and connections once a minute until the
// context ends. Session and connection TTLs are independent.
func (g *Gateway) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep(ctx)
		}
	}
}

func (g *Gateway) sweep(ctx context.Context) {
	now := g.now()

	expired, err := g.store.ExpiredSessions(ctx, now)
	if err == nil {
		for _, id := range expired {
			if err := g.EndSession(ctx, id, "session_expired"); err != nil {
				log.Printf("[Gateway] Expire session %s failed: %v", id, err)
			}
		}
	}

	conns, err := g.store.ExpiredConnections(ctx, now)
	if err != nil {
		return
	}
	for _, id := range conns {
		rec, err := g.store.GetConnection(ctx, id)
		if err != nil {
			continue
		}
		if rec.Role == model.RoleSpeaker {
			// Speaker expiry ends the session, same as a disconnect.
			if c := g.takeClient(id); c != nil {
				c.shutdown(closeGoingAway, "connection expired")
			}
			_ = g.EndSession(ctx, rec.SessionID, "speaker_expired")
			continue
		}
		_ = g.store.DeleteConnection(ctx, id)
		if c := g.takeClient(id); c != nil {
			c.shutdown(closeGoingAway, "connection expired")
		}
	}
}

// CloseAll shuts every live connection down. Used on server shutdown after
// the listener stops accepting upgrades.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for id, c := range g.clients {
		clients = append(clients, c)
		delete(g.clients, id)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.shutdown(closeGoingAway, "server shutting down")
	}
}

func (g *Gateway) takeClient(connectionID string) *client {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.clients[connectionID]
	if !ok {
		return nil
	}
	delete(g.clients, connectionID)
	return c
}

func (g *Gateway) sendJSON(c *client, payload any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (g *Gateway) sendError(c *client, code, message string) {
	g.sendJSON(c, model.ErrorMessage{Type: "error", Code: code, Message: message})
}

// refuse closes a connection that never got admitted.
func refuse(conn Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(closeMessage, closeFrame(code, reason))
	_ = conn.Close()
}
