package outbound

import (
	"context"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
)

// UploadedImageDatabasePort defines uploaded image persistence operations.
type UploadedImageDatabasePort interface {
	// Create creates a new uploaded image.
	Create(ctx context.Context, image *model.UploadedImage) error

	// FindByIDs returns the images that exist among ids.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.UploadedImage, error)

	// LockByIDs is FindByIDs with row locks. Must be called inside a transaction.
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.UploadedImage, error)

	// AttachToTraining sets training_id on the still-unattached images among
	// ids and returns how many rows changed.
	AttachToTraining(ctx context.Context, ids []uuid.UUID, trainingID uuid.UUID) (int64, error)
}

// GeneratedImageDatabasePort defines generated image persistence operations.
type GeneratedImageDatabasePort interface {
	// Create appends a generated image.
	Create(ctx context.Context, image *model.GeneratedImage) error

	// ListByUser lists a user's generated images, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.GeneratedImage, error)
}
