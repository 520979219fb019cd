//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/infra/database"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run with: PORTRAITLAB_TEST_DSN=... go test -tags integration ./internal/adapter/outbound/postgres/
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("PORTRAITLAB_TEST_DSN")
	if dsn == "" {
		t.Skip("PORTRAITLAB_TEST_DSN not set")
	}
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	u := &model.User{Email: uuid.NewString() + "@example.com", LastResetDate: time.Now().UTC()}
	require.NoError(t, NewUserAdapter(db).Create(context.Background(), u))
	return u
}

func TestTrainingAdapter_Transition(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	trainings := NewTrainingAdapter(db)
	u := createTestUser(t, db)

	record := &model.TrainingRecord{UserID: u.ID, Status: model.TrainingStatusPending, ReplicateID: "r8-" + uuid.NewString()}
	require.NoError(t, trainings.Create(ctx, record))

	t.Run("guarded move from the expected state", func(t *testing.T) {
		ok, err := trainings.Transition(ctx, record.ID, &outbound.TrainingTransition{
			From: model.TrainingStatusPending,
			To:   model.TrainingStatusProcessing,
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale from state affects no rows", func(t *testing.T) {
		ok, err := trainings.Transition(ctx, record.ID, &outbound.TrainingTransition{
			From: model.TrainingStatusPending,
			To:   model.TrainingStatusFailed,
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("terminal state is sticky", func(t *testing.T) {
		version := "portraitlab/users:abc"
		done := time.Now().UTC()
		ok, err := trainings.Transition(ctx, record.ID, &outbound.TrainingTransition{
			From:        model.TrainingStatusProcessing,
			To:          model.TrainingStatusSucceeded,
			Version:     &version,
			CompletedAt: &done,
		})
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = trainings.Transition(ctx, record.ID, &outbound.TrainingTransition{
			From: model.TrainingStatusSucceeded,
			To:   model.TrainingStatusFailed,
		})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := trainings.GetByReplicateID(ctx, record.ReplicateID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.TrainingStatusSucceeded, got.Status)
		require.NotNil(t, got.Version)
		assert.Equal(t, version, *got.Version)
	})
}

func TestUserAdapter_LockByID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserAdapter(db)
	tx := NewTransactionAdapter(db)
	u := createTestUser(t, db)

	t.Run("outside a transaction", func(t *testing.T) {
		_, err := users.LockByID(ctx, u.ID)
		assert.ErrorIs(t, err, ErrNoTransaction)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := tx.RunInTransaction(ctx, func(txCtx context.Context) error {
			got, err := users.LockByID(txCtx, uuid.New())
			assert.Nil(t, got)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("concurrent increments serialize", func(t *testing.T) {
		const writers = 8
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := tx.RunInTransaction(ctx, func(txCtx context.Context) error {
					locked, err := users.LockByID(txCtx, u.ID)
					if err != nil {
						return err
					}
					return users.UpdateFreeCounters(txCtx, u.ID, locked.GenerationsUsed+1, locked.LastResetDate)
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := users.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, writers, got.GenerationsUsed)
	})
}

func TestTransactionAdapter_UniqueViolationIsConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db)

	err := NewUserAdapter(db).Create(ctx, &model.User{Email: u.Email})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
