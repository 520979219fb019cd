package postgres

import (
	"context"
	"errors"

	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// planAdapter implements outbound.PlanDatabasePort.
type planAdapter struct {
	db *gorm.DB
}

// NewPlanAdapter creates a new plan database adapter.
func NewPlanAdapter(db *gorm.DB) outbound.PlanDatabasePort {
	return &planAdapter{db: db}
}

func (a *planAdapter) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	var plan model.Plan
	err := conn(ctx, a.db).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (a *planAdapter) Upsert(ctx context.Context, plan *model.Plan) error {
	return translateError(conn(ctx, a.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(plan).Error)
}

// Compile-time check
var _ outbound.PlanDatabasePort = (*planAdapter)(nil)
