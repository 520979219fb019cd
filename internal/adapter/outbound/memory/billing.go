package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

// planAdapter implements outbound.PlanDatabasePort.
type planAdapter struct {
	store *Store
}

// NewPlanAdapter creates a new in-memory plan adapter.
func NewPlanAdapter(store *Store) outbound.PlanDatabasePort {
	return &planAdapter{store: store}
}

func (a *planAdapter) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	var out *model.Plan
	err := a.store.view(ctx, func(st *state) error {
		if p, ok := st.plans[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (a *planAdapter) Upsert(ctx context.Context, plan *model.Plan) error {
	return a.store.view(ctx, func(st *state) error {
		now := a.store.now()
		if existing, ok := st.plans[plan.ID]; ok {
			plan.CreatedAt = existing.CreatedAt
		} else {
			plan.CreatedAt = now
		}
		plan.UpdatedAt = now
		st.plans[plan.ID] = *plan
		return nil
	})
}

// subscriptionAdapter implements outbound.SubscriptionDatabasePort.
type subscriptionAdapter struct {
	store *Store
}

// NewSubscriptionAdapter creates a new in-memory subscription adapter.
func NewSubscriptionAdapter(store *Store) outbound.SubscriptionDatabasePort {
	return &subscriptionAdapter{store: store}
}

func (a *subscriptionAdapter) Create(ctx context.Context, sub *model.Subscription) error {
	return a.store.view(ctx, func(st *state) error {
		for _, existing := range st.subs {
			if existing.UserID == sub.UserID {
				return apperrors.Conflict("subscription already exists")
			}
		}
		if sub.ID == uuid.Nil {
			sub.ID = uuid.New()
		}
		now := a.store.now()
		sub.CreatedAt, sub.UpdatedAt = now, now
		stored := *sub
		stored.Plan = nil
		st.subs[sub.ID] = stored
		return nil
	})
}

func (a *subscriptionAdapter) GetByUserIDWithPlan(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	var out *model.Subscription
	err := a.store.view(ctx, func(st *state) error {
		out = findSubscription(st, userID)
		return nil
	})
	return out, err
}

func (a *subscriptionAdapter) LockByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	var out *model.Subscription
	err := a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("subscriptions.lock"); err != nil {
			return err
		}
		out = findSubscription(st, userID)
		return nil
	})
	return out, err
}

func (a *subscriptionAdapter) UpdateCounters(ctx context.Context, id uuid.UUID, used int, lastReset time.Time) error {
	return a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("subscriptions.update"); err != nil {
			return err
		}
		sub, ok := st.subs[id]
		if !ok {
			return apperrors.NotFound("subscription")
		}
		sub.GenerationsUsed = used
		sub.LastResetDate = lastReset
		sub.UpdatedAt = a.store.now()
		st.subs[id] = sub
		return nil
	})
}

// findSubscription returns a copy of userID's subscription with its plan attached.
func findSubscription(st *state, userID uuid.UUID) *model.Subscription {
	for _, sub := range st.subs {
		if sub.UserID != userID {
			continue
		}
		out := sub
		if p, ok := st.plans[sub.PlanID]; ok {
			out.Plan = &p
		}
		return &out
	}
	return nil
}

// Compile-time checks
var (
	_ outbound.PlanDatabasePort         = (*planAdapter)(nil)
	_ outbound.SubscriptionDatabasePort = (*subscriptionAdapter)(nil)
)
