package outbound

import (
	"context"
	"time"
)

// ProviderEventDedupePort remembers provider deliveries that were applied.
// It is an optimisation only; the training guard stays authoritative.
type ProviderEventDedupePort interface {
	// IsProcessed reports whether the delivery key was already applied.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// MarkProcessed records the delivery key for ttl.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error
}
