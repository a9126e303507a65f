package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Ingest    IngestConfig
	Worker    WorkerConfig
	Session   SessionConfig
	Auth      AuthConfig
	Languages LanguagesConfig
	CORS      CORSConfig
	S3        S3Config
	Redis     RedisConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	// SendTimeout bounds a single outbound frame write. A connection that
	// cannot take a frame within this window is treated as gone.
	SendTimeout   time.Duration
	SendQueueSize int
}

// IngestConfig 오디오 수집 버스 설정
type IngestConfig struct {
	// BatchWindow is the maximum age of the oldest unemitted frame before a
	// batch is released for its session.
	BatchWindow time.Duration
	// BatchMaxFrames releases a batch early once a session has buffered this
	// many frames.
	BatchMaxFrames int
	// HighWaterFrames caps unemitted frames across all sessions. Above it the
	// bus drops the oldest frames of the most-behind session.
	HighWaterFrames int
	BatchQueueSize  int
}

// WorkerConfig 번역 워커 풀 설정
type WorkerConfig struct {
	PoolSize         int
	STTTimeout       time.Duration
	TranslateTimeout time.Duration
	TTSTimeout       time.Duration
	PersistTimeout   time.Duration
	NotifyTimeout    time.Duration
}

// SessionConfig 세션/연결 수명 설정
type SessionConfig struct {
	// TTL and ConnectionTTL are independent; the earlier of the two controls
	// a given listener.
	TTL           time.Duration
	ConnectionTTL time.Duration
	IDRetryLimit  int
}

// AuthConfig 인증 설정
type AuthConfig struct {
	// JWKSURL enables issuer key-set verification. When empty, JWTSecret is
	// used with HS256 instead (local/dev mode).
	JWKSURL   string
	Issuer    string
	Audience  string
	JWKSTTL   time.Duration
	JWTSecret string
}

// LanguagesConfig 지원 언어 오라클 설정
type LanguagesConfig struct {
	RefreshInterval time.Duration
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// S3Config AWS 설정 (S3 + Transcribe/Translate/Polly 공용 자격 증명)
type S3Config struct {
	Region          string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	PresignExpiry   time.Duration
}

// RedisConfig Redis 설정
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize:  getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			HandshakeTimeout: getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			SendTimeout:      getDuration("WS_SEND_TIMEOUT", 2*time.Second),
			SendQueueSize:    getInt("WS_SEND_QUEUE_SIZE", 64),
		},
		Ingest: IngestConfig{
			BatchWindow:     getDuration("BATCH_WINDOW", 3*time.Second),
			BatchMaxFrames:  getInt("BATCH_MAX_FRAMES", 100),
			HighWaterFrames: getInt("INGEST_HIGH_WATER", 2000),
			BatchQueueSize:  getInt("BATCH_QUEUE_SIZE", 32),
		},
		Worker: WorkerConfig{
			PoolSize:         getInt("WORKER_POOL_SIZE", 4),
			STTTimeout:       getDuration("STT_TIMEOUT", 30*time.Second),
			TranslateTimeout: getDuration("TRANSLATE_TIMEOUT", 5*time.Second),
			TTSTimeout:       getDuration("TTS_TIMEOUT", 10*time.Second),
			PersistTimeout:   getDuration("PERSIST_TIMEOUT", 5*time.Second),
			NotifyTimeout:    getDuration("NOTIFY_TIMEOUT", 2*time.Second),
		},
		Session: SessionConfig{
			TTL:           getDuration("SESSION_TTL", 4*time.Hour),
			ConnectionTTL: getDuration("CONNECTION_TTL", 2*time.Hour),
			IDRetryLimit:  getInt("ID_RETRY_LIMIT", 5),
		},
		Auth: AuthConfig{
			JWKSURL:   getEnv("JWKS_URL", ""),
			Issuer:    getEnv("TOKEN_ISSUER", ""),
			Audience:  getEnv("TOKEN_AUDIENCE", ""),
			JWKSTTL:   getDuration("JWKS_TTL", 1*time.Hour),
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Languages: LanguagesConfig{
			RefreshInterval: getDuration("LANG_REFRESH_INTERVAL", 1*time.Hour),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept"),
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			BucketName:      getEnv("AWS_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PresignExpiry:   getDuration("PRESIGN_EXPIRY", 600*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
	}
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
