package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"relay-backend/internal/auth"
	"relay-backend/internal/cache"
	"relay-backend/internal/config"
	"relay-backend/internal/gateway"
	"relay-backend/internal/langs"
	"relay-backend/internal/model"
	"relay-backend/internal/sessionid"
	"relay-backend/internal/store"
)

// SessionHandler 세션 생성/조회/종료 REST API
type SessionHandler struct {
	store     store.Store
	alloc     *sessionid.Allocator
	validator *langs.Validator
	verifier  auth.Verifier
	gw        *gateway.Gateway
	cache     *cache.TranscriptCache // nil when Redis is not configured
	sessCfg   config.SessionConfig
}

func NewSessionHandler(st store.Store, alloc *sessionid.Allocator, validator *langs.Validator, verifier auth.Verifier, gw *gateway.Gateway, tc *cache.TranscriptCache, sessCfg config.SessionConfig) *SessionHandler {
	return &SessionHandler{
		store:     st,
		alloc:     alloc,
		validator: validator,
		verifier:  verifier,
		gw:        gw,
		cache:     tc,
		sessCfg:   sessCfg,
	}
}

// CreateSessionRequest 세션 생성 요청
type CreateSessionRequest struct {
	SourceLanguage  string   `json:"sourceLanguage"`
	TargetLanguages []string `json:"targetLanguages,omitempty"`
}

// Create handles POST /api/sessions. The caller becomes the session owner
// when a valid bearer token is present; anonymous creates are allowed.
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.SourceLanguage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sourceLanguage is required",
		})
	}
	if err := h.validator.ValidateSource(req.SourceLanguage); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unsupported source language " + req.SourceLanguage,
		})
	}
	for _, target := range req.TargetLanguages {
		if err := h.validator.ValidatePair(req.SourceLanguage, target); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unsupported language pair " + req.SourceLanguage + "->" + target,
			})
		}
	}

	principal := h.verifier.Verify(c.Context(), bearerToken(c))

	id, err := h.alloc.NewID(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "could not allocate a session id",
		})
	}

	now := time.Now()
	sess := &model.Session{
		SessionID:         id,
		OwnerID:           principal.UserID,
		SourceLanguage:    req.SourceLanguage,
		ConfiguredTargets: req.TargetLanguages,
		Status:            model.StatusActive,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(h.sessCfg.TTL),
	}
	if err := h.store.PutSession(c.Context(), sess); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sessionId":      sess.SessionID,
		"sourceLanguage": sess.SourceLanguage,
		"expiresAt":      sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	sess, err := h.store.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load session",
		})
	}

	return c.JSON(fiber.Map{
		"sessionId":      sess.SessionID,
		"sourceLanguage": sess.SourceLanguage,
		"status":         sess.Status,
		"createdAt":      sess.CreatedAt.UTC().Format(time.RFC3339),
		"expiresAt":      sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// End handles POST /api/sessions/:id/end. Owner-only on owned sessions; runs
// the same teardown as a speaker disconnect.
func (h *SessionHandler) End(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	sess, err := h.store.GetSession(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load session",
		})
	}

	if sess.OwnerID != "" {
		principal := h.verifier.Verify(c.Context(), bearerToken(c))
		if principal.UserID != sess.OwnerID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "only the session owner can end it",
			})
		}
	}

	if err := h.gw.EndSession(c.Context(), sessionID, "owner_ended"); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to end session",
		})
	}
	return c.JSON(fiber.Map{"sessionId": sessionID, "status": model.StatusEnded})
}

// Transcripts handles GET /api/sessions/:id/transcripts. Served from the
// Redis history; empty when no cache is configured.
func (h *SessionHandler) Transcripts(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if _, err := h.store.GetSession(c.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load session",
		})
	}

	if h.cache == nil {
		return c.JSON(fiber.Map{"sessionId": sessionID, "transcripts": []cache.TranscriptEntry{}})
	}

	count := int64(c.QueryInt("count", 100))
	entries, err := h.cache.Recent(c.Context(), sessionID, count)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load transcripts",
		})
	}
	return c.JSON(fiber.Map{"sessionId": sessionID, "transcripts": entries})
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
