// Package handler holds the REST surface: session lifecycle and health.
package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"relay-backend/internal/cache"
	"relay-backend/internal/langs"
)

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	cache     *cache.TranscriptCache // nil when Redis is not configured
	validator *langs.Validator
}

// NewHealthHandler HealthHandler 생성
func NewHealthHandler(tc *cache.TranscriptCache, validator *langs.Validator) *HealthHandler {
	return &HealthHandler{cache: tc, validator: validator}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check 전체 상태 확인 (Redis + 언어 검증기)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	if h.cache != nil {
		start := time.Now()
		if err := h.cache.Health(c.Context()); err != nil {
			// Transcript history degrades, audio delivery keeps working.
			response.Checks["redis"] = ComponentCheck{Status: "unhealthy", Error: err.Error()}
		} else {
			response.Checks["redis"] = ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
		}
	}

	if h.validator.Degraded() {
		response.Checks["languages"] = ComponentCheck{
			Status: "degraded",
			Error:  "capability oracle unavailable, using built-in safe-list",
		}
	} else {
		response.Checks["languages"] = ComponentCheck{Status: "healthy"}
	}

	return c.JSON(response)
}
