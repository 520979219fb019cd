package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	"gorm.io/gorm"
)

// trainingAdapter implements outbound.TrainingDatabasePort.
type trainingAdapter struct {
	db *gorm.DB
}

// NewTrainingAdapter creates a new training record database adapter.
func NewTrainingAdapter(db *gorm.DB) outbound.TrainingDatabasePort {
	return &trainingAdapter{db: db}
}

func (a *trainingAdapter) Create(ctx context.Context, record *model.TrainingRecord) error {
	return translateError(conn(ctx, a.db).Create(record).Error)
}

func (a *trainingAdapter) GetByID(ctx context.Context, id uuid.UUID) (*model.TrainingRecord, error) {
	return a.first(ctx, "id = ?", id)
}

func (a *trainingAdapter) GetByReplicateID(ctx context.Context, replicateID string) (*model.TrainingRecord, error) {
	return a.first(ctx, "replicate_id = ?", replicateID)
}

func (a *trainingAdapter) first(ctx context.Context, query string, arg any) (*model.TrainingRecord, error) {
	var record model.TrainingRecord
	err := conn(ctx, a.db).First(&record, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (a *trainingAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.TrainingRecord, error) {
	var records []*model.TrainingRecord
	err := conn(ctx, a.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// Transition is a single guarded UPDATE; zero affected rows means another
// writer moved the record first.
func (a *trainingAdapter) Transition(ctx context.Context, id uuid.UUID, t *outbound.TrainingTransition) (bool, error) {
	updates := map[string]any{"status": t.To}
	if t.Version != nil {
		updates["version"] = *t.Version
	}
	if t.Error != nil {
		updates["error"] = *t.Error
	}
	if t.CompletedAt != nil {
		updates["completed_at"] = *t.CompletedAt
	}

	result := conn(ctx, a.db).
		Model(&model.TrainingRecord{}).
		Where("id = ? AND status = ? AND status NOT IN ?", id, t.From, model.TerminalTrainingStatuses).
		Updates(updates)
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Compile-time check
var _ outbound.TrainingDatabasePort = (*trainingAdapter)(nil)
