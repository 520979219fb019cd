package memory

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/portraitlab/server/internal/port/outbound"
)

// staticStorage implements outbound.ImageStoragePort by joining keys onto a
// public base URL. Used for local runs against a static file server.
type staticStorage struct {
	baseURL string
}

// NewStaticStorage creates a storage adapter that serves keys under baseURL.
func NewStaticStorage(baseURL string) outbound.ImageStoragePort {
	return &staticStorage{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *staticStorage) GetPresignedURL(ctx context.Context, key string, duration time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/"), nil
}

// Compile-time check
var _ outbound.ImageStoragePort = (*staticStorage)(nil)
