package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

// userAdapter implements outbound.UserDatabasePort.
type userAdapter struct {
	store *Store
}

// NewUserAdapter creates a new in-memory user adapter.
func NewUserAdapter(store *Store) outbound.UserDatabasePort {
	return &userAdapter{store: store}
}

func (a *userAdapter) Create(ctx context.Context, user *model.User) error {
	return a.store.view(ctx, func(st *state) error {
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		if _, ok := st.users[user.ID]; ok {
			return apperrors.Conflict("user already exists")
		}
		now := a.store.now()
		user.CreatedAt, user.UpdatedAt = now, now
		st.users[user.ID] = *user
		return nil
	})
}

func (a *userAdapter) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var out *model.User
	err := a.store.view(ctx, func(st *state) error {
		if u, ok := st.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (a *userAdapter) LockByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var out *model.User
	err := a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("users.lock"); err != nil {
			return err
		}
		if u, ok := st.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (a *userAdapter) UpdateFreeCounters(ctx context.Context, id uuid.UUID, used int, lastReset time.Time) error {
	return a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("users.update"); err != nil {
			return err
		}
		u, ok := st.users[id]
		if !ok {
			return apperrors.NotFound("user")
		}
		u.GenerationsUsed = used
		u.LastResetDate = lastReset
		u.UpdatedAt = a.store.now()
		st.users[id] = u
		return nil
	})
}

// Compile-time check
var _ outbound.UserDatabasePort = (*userAdapter)(nil)
