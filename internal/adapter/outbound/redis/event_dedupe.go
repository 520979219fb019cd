package redis

import (
	"context"
	"time"

	"github.com/portraitlab/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const defaultEventKeyPrefix = "provider:event:"

// eventDedupe implements outbound.ProviderEventDedupePort.
type eventDedupe struct {
	client redis.Cmdable
	prefix string
}

// NewEventDedupe creates a new provider event dedupe adapter.
func NewEventDedupe(client redis.Cmdable, prefix string) outbound.ProviderEventDedupePort {
	if prefix == "" {
		prefix = defaultEventKeyPrefix
	}
	return &eventDedupe{client: client, prefix: prefix}
}

func (d *eventDedupe) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed keeps the first mark; a repeated mark does not extend the TTL.
func (d *eventDedupe) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	return d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), ttl).Err()
}

// Compile-time check
var _ outbound.ProviderEventDedupePort = (*eventDedupe)(nil)
