package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UnlimitedGenerations marks a plan without a per-period cap.
const UnlimitedGenerations = -1

// PlanInterval represents the billing period of a plan.
type PlanInterval string

const (
	PlanIntervalMonth PlanInterval = "month"
	PlanIntervalYear  PlanInterval = "year"
)

// String returns the string representation of the interval.
func (i PlanInterval) String() string {
	return string(i)
}

// IsValid checks if the interval is valid.
func (i PlanInterval) IsValid() bool {
	switch i {
	case PlanIntervalMonth, PlanIntervalYear:
		return true
	}
	return false
}

// Plan is a catalog entry. Only Generations is load-bearing for quota;
// Features is an opaque, versioned document owned by the billing side.
type Plan struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	Name          string          `json:"name" gorm:"not null"`
	Generations   int             `json:"generations" gorm:"not null;default:0"` // -1 for unlimited
	PriceCents    int64           `json:"price_cents"`
	Interval      PlanInterval    `json:"interval" gorm:"not null;default:month"`
	StripePriceID string          `json:"-" gorm:"column:stripe_price_id"`
	Features      json.RawMessage `json:"features,omitempty" gorm:"type:jsonb"`
	Active        bool            `json:"active" gorm:"default:true"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName returns the database table name.
func (Plan) TableName() string {
	return "plans"
}

// IsUnlimited returns true if the plan has no generation cap.
func (p *Plan) IsUnlimited() bool {
	return p.Generations == UnlimitedGenerations
}

// SubscriptionStatus represents the status of a subscription as reported by billing.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
)

// String returns the string representation of the status.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// Subscription is a user's paid plan. Status, PlanID, the period boundaries
// and CancelAtPeriodEnd are written only by the billing webhook; this service
// only ever touches GenerationsUsed and LastResetDate.
type Subscription struct {
	ID                   uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID               uuid.UUID          `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	PlanID               string             `json:"plan_id" gorm:"not null"`
	Status               SubscriptionStatus `json:"status" gorm:"not null"`
	StripeSubscriptionID string             `json:"-" gorm:"column:stripe_subscription_id"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end" gorm:"default:false"`
	GenerationsUsed      int                `json:"generations_used" gorm:"column:generations_used;not null;default:0"`
	LastResetDate        time.Time          `json:"last_reset_date" gorm:"column:last_reset_date"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`

	// Relations
	Plan *Plan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
}

// TableName returns the database table name.
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsActive reports whether the subscription currently grants its plan allowance.
// A subscription flagged CancelAtPeriodEnd stays active until billing flips it.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
