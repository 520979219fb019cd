package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ===== UploadedImageAdapter =====

// uploadedImageAdapter implements outbound.UploadedImageDatabasePort.
type uploadedImageAdapter struct {
	db *gorm.DB
}

// NewUploadedImageAdapter creates a new uploaded image adapter.
func NewUploadedImageAdapter(db *gorm.DB) outbound.UploadedImageDatabasePort {
	return &uploadedImageAdapter{db: db}
}

func (a *uploadedImageAdapter) Create(ctx context.Context, image *model.UploadedImage) error {
	return translateError(conn(ctx, a.db).Create(image).Error)
}

func (a *uploadedImageAdapter) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.UploadedImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var images []*model.UploadedImage
	err := conn(ctx, a.db).
		Where("id = ANY(?)", idArray(ids)).
		Find(&images).Error
	return images, err
}

// LockByIDs locks in id order so concurrent submissions cannot deadlock.
func (a *uploadedImageAdapter) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.UploadedImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := lockConn(ctx)
	if err != nil {
		return nil, err
	}
	var images []*model.UploadedImage
	err = tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ANY(?)", idArray(ids)).
		Order("id").
		Find(&images).Error
	return images, translateError(err)
}

func (a *uploadedImageAdapter) AttachToTraining(ctx context.Context, ids []uuid.UUID, trainingID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := conn(ctx, a.db).
		Model(&model.UploadedImage{}).
		Where("id = ANY(?) AND training_id IS NULL", idArray(ids)).
		Update("training_id", trainingID)
	return result.RowsAffected, translateError(result.Error)
}

// ===== GeneratedImageAdapter =====

// generatedImageAdapter implements outbound.GeneratedImageDatabasePort.
type generatedImageAdapter struct {
	db *gorm.DB
}

// NewGeneratedImageAdapter creates a new generated image adapter.
func NewGeneratedImageAdapter(db *gorm.DB) outbound.GeneratedImageDatabasePort {
	return &generatedImageAdapter{db: db}
}

func (a *generatedImageAdapter) Create(ctx context.Context, image *model.GeneratedImage) error {
	return translateError(conn(ctx, a.db).Create(image).Error)
}

func (a *generatedImageAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.GeneratedImage, error) {
	query := conn(ctx, a.db).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var images []*model.GeneratedImage
	err := query.Find(&images).Error
	return images, err
}

// idArray renders ids as a Postgres array parameter for "= ANY(?)".
func idArray(ids []uuid.UUID) any {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}

// Compile-time interface checks
var (
	_ outbound.UploadedImageDatabasePort  = (*uploadedImageAdapter)(nil)
	_ outbound.GeneratedImageDatabasePort = (*generatedImageAdapter)(nil)
)
