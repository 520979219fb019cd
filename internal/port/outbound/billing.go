package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
)

// PlanDatabasePort defines plan persistence operations.
type PlanDatabasePort interface {
	// GetByID gets a plan by ID. Returns nil if not found.
	GetByID(ctx context.Context, id string) (*model.Plan, error)

	// Upsert creates or replaces a catalog entry.
	Upsert(ctx context.Context, plan *model.Plan) error
}

// SubscriptionDatabasePort defines subscription persistence operations.
//
// Billing fields are owned by the billing webhook; only the quota counters
// are writable through this port.
type SubscriptionDatabasePort interface {
	// Create creates a new subscription.
	Create(ctx context.Context, sub *model.Subscription) error

	// GetByUserIDWithPlan gets a subscription by user ID with plan loaded.
	GetByUserIDWithPlan(ctx context.Context, userID uuid.UUID) (*model.Subscription, error)

	// LockByUserID loads the subscription row for update with plan loaded.
	// Must be called inside a transaction. Returns nil if not found.
	LockByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error)

	// UpdateCounters writes the subscription quota counters.
	UpdateCounters(ctx context.Context, id uuid.UUID, used int, lastReset time.Time) error
}
