package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
)

// TrainingTransition describes a guarded status change.
type TrainingTransition struct {
	From        model.TrainingStatus
	To          model.TrainingStatus
	Version     *string
	Error       *string
	CompletedAt *time.Time
}

// TrainingDatabasePort defines training record persistence operations.
type TrainingDatabasePort interface {
	// Create creates a new training record.
	Create(ctx context.Context, record *model.TrainingRecord) error

	// GetByID gets a training record by ID. Returns nil if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*model.TrainingRecord, error)

	// GetByReplicateID gets a training record by provider job ID. Returns nil if not found.
	GetByReplicateID(ctx context.Context, replicateID string) (*model.TrainingRecord, error)

	// ListByUser lists a user's trainings, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.TrainingRecord, error)

	// Transition applies t only while the row is still in t.From and not
	// terminal. Returns false when the guard did not match.
	Transition(ctx context.Context, id uuid.UUID, t *TrainingTransition) (bool, error)
}
