package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
)

// UserDatabasePort defines user persistence operations.
type UserDatabasePort interface {
	// Create creates a new user.
	Create(ctx context.Context, user *model.User) error

	// FindByID finds a user by ID. Returns nil if not found.
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// LockByID loads the user row for update. Must be called inside a transaction.
	LockByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// UpdateFreeCounters writes the free-tier quota counters.
	UpdateFreeCounters(ctx context.Context, id uuid.UUID, used int, lastReset time.Time) error
}
