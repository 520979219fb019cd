package memory

import (
	"context"
	"time"

	"github.com/portraitlab/server/internal/port/outbound"
)

// eventDedupe implements outbound.ProviderEventDedupePort.
type eventDedupe struct {
	store *Store
}

// NewEventDedupe creates a new in-memory provider event dedupe.
func NewEventDedupe(store *Store) outbound.ProviderEventDedupePort {
	return &eventDedupe{store: store}
}

func (d *eventDedupe) IsProcessed(ctx context.Context, key string) (bool, error) {
	var seen bool
	err := d.store.view(ctx, func(st *state) error {
		expiry, ok := st.processed[key]
		seen = ok && d.store.now().Before(expiry)
		return nil
	})
	return seen, err
}

func (d *eventDedupe) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	return d.store.view(ctx, func(st *state) error {
		st.processed[key] = d.store.now().Add(ttl)
		return nil
	})
}

// Compile-time check
var _ outbound.ProviderEventDedupePort = (*eventDedupe)(nil)
