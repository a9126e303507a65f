// Package database archives finished sessions to postgres. The archive is
// optional; without DB_HOST the server runs memory-only.
package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SessionRecord is one archived session summary row.
type SessionRecord struct {
	ID             uint      `gorm:"primaryKey"`
	SessionID      string    `gorm:"uniqueIndex;size:64"`
	OwnerID        string    `gorm:"size:64;index"`
	SourceLanguage string    `gorm:"size:8"`
	EndReason      string    `gorm:"size:32"`
	BatchCount     uint64
	DroppedFrames  uint64
	StartedAt      time.Time
	EndedAt        time.Time
	CreatedAt      time.Time
}

// Config 데이터베이스 설정
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// LoadConfig 환경변수에서 DB 설정 로드
func LoadConfig() *Config {
	return &Config{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "postgres"),
		SSLMode:  getEnv("DB_SSLMODE", "require"),
		TimeZone: getEnv("DB_TIMEZONE", "UTC"),
	}
}

// Configured reports whether an archive database was configured at all.
func (c *Config) Configured() bool { return c.Host != "" }

// Archive wraps the gorm handle.
type Archive struct {
	db *gorm.DB
}

// Connect 데이터베이스 연결 수립
func Connect(cfg *Config) (*Archive, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.TimeZone,
	)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session records: %w", err)
	}

	log.Printf("[Database] Connected to %s:%s/%s", cfg.Host, cfg.Port, cfg.DBName)
	return &Archive{db: db}, nil
}

// SaveSummary inserts one finished session. The unique index on session_id
// rejects replays if the end path runs twice.
func (a *Archive) SaveSummary(ctx context.Context, rec *SessionRecord) error {
	err := a.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		log.Printf("[Database] Failed to archive session %s: %v", rec.SessionID, err)
	}
	return err
}

// RecentSessions lists the latest archived sessions, newest first.
func (a *Archive) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	var records []SessionRecord
	err := a.db.WithContext(ctx).Order("ended_at desc").Limit(limit).Find(&records).Error
	return records, err
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
