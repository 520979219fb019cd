package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionAdapter implements outbound.SubscriptionDatabasePort.
type subscriptionAdapter struct {
	db *gorm.DB
}

// NewSubscriptionAdapter creates a new subscription database adapter.
func NewSubscriptionAdapter(db *gorm.DB) outbound.SubscriptionDatabasePort {
	return &subscriptionAdapter{db: db}
}

func (a *subscriptionAdapter) Create(ctx context.Context, sub *model.Subscription) error {
	return translateError(conn(ctx, a.db).Create(sub).Error)
}

func (a *subscriptionAdapter) GetByUserIDWithPlan(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription
	err := conn(ctx, a.db).
		Preload("Plan").
		First(&sub, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// LockByUserID locks only the subscription row; the plan is read plainly.
func (a *subscriptionAdapter) LockByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	tx, err := lockConn(ctx)
	if err != nil {
		return nil, err
	}

	var sub model.Subscription
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError(err)
	}

	var plan model.Plan
	err = tx.First(&plan, "id = ?", sub.PlanID).Error
	switch {
	case err == nil:
		sub.Plan = &plan
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}
	return &sub, nil
}

func (a *subscriptionAdapter) UpdateCounters(ctx context.Context, id uuid.UUID, used int, lastReset time.Time) error {
	return translateError(conn(ctx, a.db).
		Model(&model.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"generations_used": used,
			"last_reset_date":  lastReset,
		}).Error)
}

// Compile-time check
var _ outbound.SubscriptionDatabasePort = (*subscriptionAdapter)(nil)
