// Package server wires the fiber app: REST session API, health check, and
// the WebSocket upgrade path into the gateway.
package server

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"relay-backend/internal/config"
	"relay-backend/internal/gateway"
	"relay-backend/internal/handler"
)

// Server Fiber 서버 래퍼
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	gw             *gateway.Gateway
	sessionHandler *handler.SessionHandler
	healthHandler  *handler.HealthHandler
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, gw *gateway.Gateway, sessionHandler *handler.SessionHandler, healthHandler *handler.HealthHandler) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Realtime Translation Relay",
		ServerHeader:    "Fiber",
		StrictRouting:   true,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		BodyLimit:       1 * 1024 * 1024, // REST 전용, 오디오는 WS로만
	})

	return &Server{
		app:            app,
		cfg:            cfg,
		gw:             gw,
		sessionHandler: sessionHandler,
		healthHandler:  healthHandler,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)

	// 세션 생성 rate limit (IP 기반)
	createLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	api := s.app.Group("/api/sessions")
	api.Post("", createLimiter, s.sessionHandler.Create)
	api.Get("/:id", s.sessionHandler.Get)
	api.Post("/:id/end", s.sessionHandler.End)
	api.Get("/:id/transcripts", s.sessionHandler.Transcripts)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 세션 엔드포인트. Role은 targetLanguage 유무로 결정:
	// 있으면 listener, 없으면 speaker.
	s.app.Get("/ws/sessions/:id", func(c *fiber.Ctx) error {
		c.Locals("sessionId", c.Params("id"))
		c.Locals("targetLanguage", c.Query("targetLanguage", ""))

		token := c.Query("token", "")
		if token == "" {
			// Browsers cannot set headers on WS upgrades, but other clients
			// may still use Authorization.
			authHeader := c.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				token = authHeader[7:]
			}
		}
		c.Locals("token", token)
		return c.Next()
	}, websocket.New(func(conn *websocket.Conn) {
		s.gw.Handle(conn,
			conn.Locals("token").(string),
			conn.Locals("sessionId").(string),
			conn.Locals("targetLanguage").(string),
		)
	}, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start 서버 시작. Shutdown은 main의 종료 시퀀스에서 호출한다.
func (s *Server) Start() error {
	log.Printf("🚀 Translation relay starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/sessions/:id", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료 (업그레이드 수락 중단)
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
