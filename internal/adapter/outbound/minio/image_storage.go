package minio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/portraitlab/server/internal/infra/config"
	"github.com/portraitlab/server/internal/port/outbound"
)

const defaultExpiry = time.Hour

// ImageStorageAdapter implements outbound.ImageStoragePort using MinIO.
type ImageStorageAdapter struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewImageStorageAdapter creates a MinIO presigning adapter. A configured
// region avoids the bucket location lookup on the first presign.
func NewImageStorageAdapter(cfg config.StorageConfig) (*ImageStorageAdapter, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("incomplete MinIO configuration")
	}

	region := cfg.Region
	if region == "auto" {
		region = ""
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &ImageStorageAdapter{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

// GetPresignedURL generates a presigned GET URL.
func (a *ImageStorageAdapter) GetPresignedURL(ctx context.Context, key string, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = a.expiry
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, duration, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// Compile-time check
var _ outbound.ImageStoragePort = (*ImageStorageAdapter)(nil)
