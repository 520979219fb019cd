package outbound

import (
	"context"
	"time"
)

// ImageStoragePort resolves stored objects to URLs a provider can fetch.
type ImageStoragePort interface {
	// GetPresignedURL generates a presigned URL for temporary read access.
	GetPresignedURL(ctx context.Context, key string, duration time.Duration) (string, error)
}
