package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay-backend/internal/auth"
	awsadapter "relay-backend/internal/aws"
	"relay-backend/internal/cache"
	"relay-backend/internal/config"
	"relay-backend/internal/database"
	"relay-backend/internal/gateway"
	"relay-backend/internal/handler"
	"relay-backend/internal/ingest"
	"relay-backend/internal/langs"
	"relay-backend/internal/model"
	"relay-backend/internal/server"
	"relay-backend/internal/sessionid"
	"relay-backend/internal/storage"
	"relay-backend/internal/store"
	"relay-backend/internal/worker"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// AWS 클라이언트
	awsCfg, err := awsadapter.LoadConfig(rootCtx, cfg.S3)
	if err != nil {
		log.Fatalf("❌ AWS config load failed: %v", err)
	}
	transcriber := awsadapter.NewTranscriber(awsCfg)
	translator := awsadapter.NewTranslator(awsCfg)
	synthesizer := awsadapter.NewSynthesizer(awsCfg)

	blobs, err := storage.NewS3Store(awsCfg, cfg.S3)
	if err != nil {
		log.Fatalf("❌ S3 store init failed: %v", err)
	}
	log.Printf("✅ S3 store ready (bucket: %s)", cfg.S3.BucketName)

	// 세션/연결 저장소
	st := store.NewMemory()
	alloc := sessionid.New(func(ctx context.Context, id string) (bool, error) {
		_, err := st.GetSession(ctx, id)
		if err == store.ErrNotFound {
			return false, nil
		}
		return err == nil, err
	}, cfg.Session.IDRetryLimit)

	// 언어 검증기 (Translate 기능 오라클, 주기적 갱신)
	validator := langs.NewValidator(translator)
	go validator.Run(rootCtx, cfg.Languages.RefreshInterval)

	// 토큰 검증기: JWKS URL이 있으면 issuer 검증, 없으면 HS256
	var verifier auth.Verifier
	if cfg.Auth.JWKSURL != "" {
		verifier = auth.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSTTL)
		log.Printf("✅ JWKS verifier (issuer: %s)", cfg.Auth.Issuer)
	} else {
		verifier = auth.NewStaticVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		log.Println("ℹ️ Static HS256 verifier (no JWKS_URL configured)")
	}

	// Redis 트랜스크립트 캐시 (선택적)
	var transcripts *cache.TranscriptCache
	if cfg.Redis.Addr != "" {
		transcripts, err = cache.NewTranscriptCache(cfg.Redis)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, transcript history disabled: %v", err)
			transcripts = nil
		}
	}

	// 세션 아카이브 (선택적)
	var archive *database.Archive
	if dbCfg := database.LoadConfig(); dbCfg.Configured() {
		archive, err = database.Connect(dbCfg)
		if err != nil {
			log.Printf("⚠️ Archive database unavailable: %v", err)
			archive = nil
		}
	}

	// 인제스트 버스와 게이트웨이
	bus := ingest.NewBus(cfg.Ingest)
	gw := gateway.New(cfg.WebSocket, cfg.Session, st, bus, validator, verifier)

	// 워커 풀
	var sink worker.TranscriptSink
	if transcripts != nil {
		sink = transcripts
	}
	pool := worker.NewPool(cfg.Worker, st, transcriber, translator, synthesizer, blobs, gw, sink)

	// 세션 종료 시 아카이브 row 기록
	if archive != nil {
		gw.SetOnEnd(func(sess *model.Session, reason string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			processed, _, _ := pool.Stats()
			_ = archive.SaveSummary(ctx, &database.SessionRecord{
				SessionID:      sess.SessionID,
				OwnerID:        sess.OwnerID,
				SourceLanguage: sess.SourceLanguage,
				EndReason:      reason,
				BatchCount:     processed,
				DroppedFrames:  bus.DroppedFrames(),
				StartedAt:      sess.CreatedAt,
				EndedAt:        time.Now(),
			})
		})
	}

	// 파이프라인 기동: 버스 → 워커 풀
	busCtx, busCancel := context.WithCancel(rootCtx)
	go bus.Run(busCtx)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(rootCtx, bus.Batches())
	}()

	// TTL 청소 루프
	go gw.RunReaper(rootCtx)

	// HTTP/WS 서버
	sessionHandler := handler.NewSessionHandler(st, alloc, validator, verifier, gw, transcripts, cfg.Session)
	healthHandler := handler.NewHealthHandler(transcripts, validator)
	srv := server.New(cfg, gw, sessionHandler, healthHandler)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("🛑 Received %v, shutting down...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("❌ Server error: %v", err)
		}
	}

	// 종료 시퀀스: 업그레이드 중단 → 연결 종료 → 버스 플러시 → 워커 드레인
	if err := srv.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	gw.CloseAll()

	busCancel() // flushes buffered frames and closes the batch channel
	select {
	case <-poolDone:
	case <-time.After(30 * time.Second):
		log.Println("⚠️ Worker pool drain timed out")
	}

	if transcripts != nil {
		_ = transcripts.Close()
	}
	if archive != nil {
		_ = archive.Close()
	}
	log.Println("👋 Shutdown complete")
}
