// Package storage persists translated audio chunks to S3 and hands out
// time-limited download URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "relay-backend/internal/config"
)

// retentionTag marks objects for the bucket lifecycle rule that deletes
// translated chunks after 24 hours.
const retentionTag = "retention=24h"

// S3Store implements the worker's blob store port.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

func NewS3Store(cfg aws.Config, s3cfg appconfig.S3Config) (*S3Store, error) {
	if s3cfg.BucketName == "" {
		return nil, fmt.Errorf("storage: AWS_S3_BUCKET is required")
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  s3cfg.BucketName,
		expiry:  s3cfg.PresignExpiry,
	}, nil
}

// Put uploads one translated chunk under the session-scoped key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Tagging:     aws.String(retentionTag),
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a GET URL listeners can fetch the chunk from directly.
func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		log.Printf("[Storage] Presign failed for %s: %v", key, err)
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return req.URL, nil
}
