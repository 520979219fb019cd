package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user. GenerationsUsed and LastResetDate are the
// free-tier quota counters; they are ignored while an active subscription
// supplies the allowance.
type User struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Email           string    `json:"email" gorm:"uniqueIndex;not null"`
	Name            string    `json:"name"`
	GenerationsUsed int       `json:"generations_used" gorm:"column:generations_used;not null;default:0"`
	LastResetDate   time.Time `json:"last_reset_date" gorm:"column:last_reset_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Relations
	Subscription *Subscription `json:"subscription,omitempty" gorm:"foreignKey:UserID"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "users"
}
