package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/portraitlab/server/internal/infra/config"
	"github.com/portraitlab/server/internal/port/outbound"
)

// ErrIncompleteConfig is returned when required storage settings are missing.
var ErrIncompleteConfig = errors.New("incomplete S3 configuration")

// ImageStorageAdapter implements outbound.ImageStoragePort using S3 or R2.
type ImageStorageAdapter struct {
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

// NewImageStorageAdapter creates a presigning adapter for the configured bucket.
// Static credentials are used when given, the default AWS chain otherwise.
func NewImageStorageAdapter(ctx context.Context, cfg config.StorageConfig) (*ImageStorageAdapter, error) {
	if cfg.Bucket == "" {
		return nil, ErrIncompleteConfig
	}

	// R2 uses "auto" but we need a valid region for SDK
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				scheme := "https://"
				if !cfg.UseSSL {
					scheme = "http://"
				}
				endpoint = scheme + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &ImageStorageAdapter{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		expiry:    cfg.URLExpiry,
	}, nil
}

// GetPresignedURL generates a presigned GET URL. A non-positive duration
// falls back to the configured expiry.
func (a *ImageStorageAdapter) GetPresignedURL(ctx context.Context, key string, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = a.expiry
	}
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		if duration > 0 {
			opts.Expires = duration
		}
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// Compile-time check
var _ outbound.ImageStoragePort = (*ImageStorageAdapter)(nil)
