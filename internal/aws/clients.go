// Package aws holds the production adapters for the speech pipeline ports:
// Transcribe Streaming for STT, Translate for MT and the capability oracle,
// Polly for TTS.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "relay-backend/internal/config"
)

// LoadConfig AWS SDK 설정 로드 (정적 자격증명)
func LoadConfig(ctx context.Context, cfg appconfig.S3Config) (aws.Config, error) {
	if cfg.AccessKeyID == "" {
		// Fall back to the default credential chain (instance role, env).
		return config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	return config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
}
