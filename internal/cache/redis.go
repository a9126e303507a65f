// Package cache keeps recent per-session transcripts in Redis so late
// joiners and the REST API can read back what was said.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"relay-backend/internal/config"
)

// transcriptTTL matches the blob retention window.
const transcriptTTL = 24 * time.Hour

// TranscriptEntry is one translated chunk's text.
type TranscriptEntry struct {
	SessionID      string    `json:"sessionId"`
	TargetLanguage string    `json:"targetLanguage"`
	Transcript     string    `json:"transcript"`
	SequenceNumber int64     `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TranscriptCache wraps the Redis client. It implements the worker's
// transcript sink; writes are best effort and never fail the pipeline.
type TranscriptCache struct {
	client *redis.Client
}

func NewTranscriptCache(cfg config.RedisConfig) (*TranscriptCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", cfg.Addr)
	return &TranscriptCache{client: client}, nil
}

func transcriptKey(sessionID string) string {
	return "session:" + sessionID + ":transcripts"
}

// Append implements worker.TranscriptSink.
func (c *TranscriptCache) Append(ctx context.Context, sessionID, lang, transcript string, sequence int64) {
	entry := TranscriptEntry{
		SessionID:      sessionID,
		TargetLanguage: lang,
		Transcript:     transcript,
		SequenceNumber: sequence,
		CreatedAt:      time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	key := transcriptKey(sessionID)
	if err := c.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to append transcript for %s: %v", sessionID, err)
		return
	}
	c.client.Expire(ctx, key, transcriptTTL)
}

// Recent returns the last count entries for a session, oldest first.
func (c *TranscriptCache) Recent(ctx context.Context, sessionID string, count int64) ([]TranscriptEntry, error) {
	results, err := c.client.LRange(ctx, transcriptKey(sessionID), -count, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]TranscriptEntry, 0, len(results))
	for _, data := range results {
		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete drops a session's transcript history.
func (c *TranscriptCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, transcriptKey(sessionID)).Err()
}

// Health checks the Redis connection.
func (c *TranscriptCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *TranscriptCache) Close() error {
	return c.client.Close()
}
