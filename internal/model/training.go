package model

import (
	"time"

	"github.com/google/uuid"
)

// TrainingStatus represents the status of a model-training job.
type TrainingStatus string

const (
	TrainingStatusPending    TrainingStatus = "pending"
	TrainingStatusProcessing TrainingStatus = "processing"
	TrainingStatusSucceeded  TrainingStatus = "succeeded"
	TrainingStatusFailed     TrainingStatus = "failed"
)

// TerminalTrainingStatuses lists the sticky states.
var TerminalTrainingStatuses = []TrainingStatus{TrainingStatusSucceeded, TrainingStatusFailed}

// String returns the string representation of the status.
func (s TrainingStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid.
func (s TrainingStatus) IsValid() bool {
	switch s {
	case TrainingStatusPending, TrainingStatusProcessing, TrainingStatusSucceeded, TrainingStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns whether the status is terminal.
func (s TrainingStatus) IsTerminal() bool {
	return s == TrainingStatusSucceeded || s == TrainingStatusFailed
}

// TrainingRecord represents one model-training job run by the external provider.
type TrainingRecord struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID      uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index"`
	Name        string         `json:"name"`
	Status      TrainingStatus `json:"status" gorm:"not null;default:pending"`
	ReplicateID string         `json:"replicate_id" gorm:"column:replicate_id;uniqueIndex;not null"`
	Version     *string        `json:"version,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TableName returns the database table name.
func (TrainingRecord) TableName() string {
	return "training_records"
}

// IsTerminal checks if the training is in a terminal state.
func (t *TrainingRecord) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// BelongsTo checks if the training belongs to the given user.
func (t *TrainingRecord) BelongsTo(userID uuid.UUID) bool {
	return t.UserID == userID
}
