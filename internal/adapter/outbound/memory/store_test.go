package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RunInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit keeps writes", func(t *testing.T) {
		store := NewStore()
		users := NewUserAdapter(store)
		user := &model.User{Email: "a@example.com"}
		store.PutUser(user)

		err := store.RunInTransaction(ctx, func(txCtx context.Context) error {
			return users.UpdateFreeCounters(txCtx, user.ID, 3, time.Now())
		})
		require.NoError(t, err)

		got, err := users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.GenerationsUsed)
	})

	t.Run("error rolls back", func(t *testing.T) {
		store := NewStore()
		users := NewUserAdapter(store)
		gen := NewGeneratedImageAdapter(store)
		user := &model.User{Email: "b@example.com"}
		store.PutUser(user)

		boom := errors.New("boom")
		err := store.RunInTransaction(ctx, func(txCtx context.Context) error {
			require.NoError(t, users.UpdateFreeCounters(txCtx, user.ID, 4, time.Now()))
			require.NoError(t, gen.Create(txCtx, &model.GeneratedImage{UserID: user.ID, Prompt: "p", ImageURL: "u"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, _ := users.FindByID(ctx, user.ID)
		assert.Equal(t, 0, got.GenerationsUsed)
		images, _ := gen.ListByUser(ctx, user.ID, 0)
		assert.Empty(t, images)
	})

	t.Run("nested joins outer", func(t *testing.T) {
		store := NewStore()
		err := store.RunInTransaction(ctx, func(txCtx context.Context) error {
			return store.RunInTransaction(txCtx, func(inner context.Context) error {
				assert.True(t, store.inTx(inner))
				return nil
			})
		})
		assert.NoError(t, err)
	})

	t.Run("commit fault rolls back", func(t *testing.T) {
		store := NewStore()
		users := NewUserAdapter(store)
		user := &model.User{Email: "c@example.com"}
		store.PutUser(user)
		store.InjectFault("tx.commit", errors.New("commit failed"))

		err := store.RunInTransaction(ctx, func(txCtx context.Context) error {
			return users.UpdateFreeCounters(txCtx, user.ID, 1, time.Now())
		})
		assert.Error(t, err)

		got, _ := users.FindByID(ctx, user.ID)
		assert.Equal(t, 0, got.GenerationsUsed)
	})
}

func TestStore_InjectFault(t *testing.T) {
	store := NewStore()
	users := NewUserAdapter(store)
	user := &model.User{Email: "d@example.com"}
	store.PutUser(user)

	fault := errors.New("lock timeout")
	store.InjectFault("users.lock", fault)

	_, err := users.LockByID(context.Background(), user.ID)
	assert.ErrorIs(t, err, fault)

	got, err := users.LockByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestTrainingAdapter_Transition(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	trainings := NewTrainingAdapter(store)

	rec := &model.TrainingRecord{UserID: uuid.New(), Status: model.TrainingStatusPending, ReplicateID: "job-1"}
	require.NoError(t, trainings.Create(ctx, rec))

	applied, err := trainings.Transition(ctx, rec.ID, &outbound.TrainingTransition{
		From: model.TrainingStatusProcessing,
		To:   model.TrainingStatusSucceeded,
	})
	require.NoError(t, err)
	assert.False(t, applied, "guard must reject a stale from-state")

	version := "v1"
	applied, err = trainings.Transition(ctx, rec.ID, &outbound.TrainingTransition{
		From:    model.TrainingStatusPending,
		To:      model.TrainingStatusSucceeded,
		Version: &version,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := trainings.GetByReplicateID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.TrainingStatusSucceeded, got.Status)
	assert.Equal(t, "v1", *got.Version)

	err = trainings.Create(ctx, &model.TrainingRecord{UserID: uuid.New(), ReplicateID: "job-1"})
	assert.Error(t, err)
}

func TestUploadedImageAdapter_AttachOnlyUnattached(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	uploads := NewUploadedImageAdapter(store)

	other := uuid.New()
	free := &model.UploadedImage{UserID: uuid.New(), StorageKey: "a.jpg"}
	taken := &model.UploadedImage{UserID: free.UserID, StorageKey: "b.jpg", TrainingID: &other}
	store.PutUploadedImage(free)
	store.PutUploadedImage(taken)

	n, err := uploads.AttachToTraining(ctx, []uuid.UUID{free.ID, taken.ID}, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := uploads.FindByIDs(ctx, []uuid.UUID{taken.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other, *got[0].TrainingID)
}

func TestEventDedupe(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	dedupe := NewEventDedupe(store)

	seen, err := dedupe.IsProcessed(ctx, "job:succeeded")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, dedupe.MarkProcessed(ctx, "job:succeeded", time.Hour))
	seen, _ = dedupe.IsProcessed(ctx, "job:succeeded")
	assert.True(t, seen)

	now = now.Add(2 * time.Hour)
	seen, _ = dedupe.IsProcessed(ctx, "job:succeeded")
	assert.False(t, seen)
}

func TestStaticStorage(t *testing.T) {
	s := NewStaticStorage("http://localhost:9000/uploads/")
	url, err := s.GetPresignedURL(context.Background(), "user 1/a.jpg", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/uploads/user%201/a.jpg", url)
}
