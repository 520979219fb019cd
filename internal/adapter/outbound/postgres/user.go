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

// userAdapter implements outbound.UserDatabasePort.
type userAdapter struct {
	db *gorm.DB
}

// NewUserAdapter creates a new user database adapter.
func NewUserAdapter(db *gorm.DB) outbound.UserDatabasePort {
	return &userAdapter{db: db}
}

func (a *userAdapter) Create(ctx context.Context, u *model.User) error {
	return translateError(conn(ctx, a.db).Create(u).Error)
}

func (a *userAdapter) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := conn(ctx, a.db).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (a *userAdapter) LockByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	tx, err := lockConn(ctx)
	if err != nil {
		return nil, err
	}
	var u model.User
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError(err)
	}
	return &u, nil
}

func (a *userAdapter) UpdateFreeCounters(ctx context.Context, id uuid.UUID, used int, lastReset time.Time) error {
	return translateError(conn(ctx, a.db).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"generations_used": used,
			"last_reset_date":  lastReset,
		}).Error)
}

// Compile-time check
var _ outbound.UserDatabasePort = (*userAdapter)(nil)
