package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

// trainingAdapter implements outbound.TrainingDatabasePort.
type trainingAdapter struct {
	store *Store
}

// NewTrainingAdapter creates a new in-memory training adapter.
func NewTrainingAdapter(store *Store) outbound.TrainingDatabasePort {
	return &trainingAdapter{store: store}
}

func (a *trainingAdapter) Create(ctx context.Context, record *model.TrainingRecord) error {
	return a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("trainings.create"); err != nil {
			return err
		}
		for _, existing := range st.trainings {
			if existing.ReplicateID == record.ReplicateID {
				return apperrors.Conflict("training job already recorded")
			}
		}
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		now := a.store.now()
		record.CreatedAt, record.UpdatedAt = now, now
		st.trainings[record.ID] = *record
		return nil
	})
}

func (a *trainingAdapter) GetByID(ctx context.Context, id uuid.UUID) (*model.TrainingRecord, error) {
	var out *model.TrainingRecord
	err := a.store.view(ctx, func(st *state) error {
		if t, ok := st.trainings[id]; ok {
			out = &t
		}
		return nil
	})
	return out, err
}

func (a *trainingAdapter) GetByReplicateID(ctx context.Context, replicateID string) (*model.TrainingRecord, error) {
	var out *model.TrainingRecord
	err := a.store.view(ctx, func(st *state) error {
		for _, t := range st.trainings {
			if t.ReplicateID == replicateID {
				out = &t
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (a *trainingAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.TrainingRecord, error) {
	var out []*model.TrainingRecord
	err := a.store.view(ctx, func(st *state) error {
		for _, t := range st.trainings {
			if t.UserID == userID {
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (a *trainingAdapter) Transition(ctx context.Context, id uuid.UUID, tr *outbound.TrainingTransition) (bool, error) {
	var applied bool
	err := a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("trainings.transition"); err != nil {
			return err
		}
		t, ok := st.trainings[id]
		if !ok || t.Status != tr.From || t.Status.IsTerminal() {
			return nil
		}
		t.Status = tr.To
		if tr.Version != nil {
			t.Version = tr.Version
		}
		if tr.Error != nil {
			t.Error = tr.Error
		}
		if tr.CompletedAt != nil {
			t.CompletedAt = tr.CompletedAt
		}
		t.UpdatedAt = a.store.now()
		st.trainings[id] = t
		applied = true
		return nil
	})
	return applied, err
}

// Compile-time check
var _ outbound.TrainingDatabasePort = (*trainingAdapter)(nil)
