package artifact

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/adapter/outbound/memory"
	"github.com/portraitlab/server/internal/domain/quota"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const baseVersion = "black-forest-labs/flux-dev:base"

type MockInference struct {
	mock.Mock
}

func (m *MockInference) RunInference(ctx context.Context, req *outbound.InferenceRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type linkerFixture struct {
	store     *memory.Store
	users     outbound.UserDatabasePort
	trainings outbound.TrainingDatabasePort
	generated outbound.GeneratedImageDatabasePort
	inference *MockInference
	linker    *Linker
	user      *model.User
}

func newLinkerFixture(t *testing.T) *linkerFixture {
	t.Helper()
	store := memory.NewStore()
	f := &linkerFixture{
		store:     store,
		users:     memory.NewUserAdapter(store),
		trainings: memory.NewTrainingAdapter(store),
		generated: memory.NewGeneratedImageAdapter(store),
		inference: new(MockInference),
	}
	ledger := quota.NewLedger(f.users, memory.NewSubscriptionAdapter(store), store, nil, quota.DefaultConfig(), nil, zap.NewNop())
	f.linker = NewLinker(f.trainings, f.generated, store, ledger, f.inference, &Config{BaseModelVersion: baseVersion}, nil, zap.NewNop())

	f.user = &model.User{Email: "user@example.com", LastResetDate: time.Now().UTC()}
	store.PutUser(f.user)
	return f
}

func (f *linkerFixture) training(t *testing.T, owner uuid.UUID, status model.TrainingStatus) *model.TrainingRecord {
	t.Helper()
	rec := &model.TrainingRecord{UserID: owner, Status: status, ReplicateID: uuid.NewString()}
	if status == model.TrainingStatusSucceeded {
		v := "portraitlab/user-model:" + rec.ReplicateID
		rec.Version = &v
	}
	require.NoError(t, f.trainings.Create(context.Background(), rec))
	return rec
}

func (f *linkerFixture) used(t *testing.T) int {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u.GenerationsUsed
}

func (f *linkerFixture) images(t *testing.T) []*model.GeneratedImage {
	t.Helper()
	imgs, err := f.generated.ListByUser(context.Background(), f.user.ID, 0)
	require.NoError(t, err)
	return imgs
}

func TestLinker_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("trained model", func(t *testing.T) {
		f := newLinkerFixture(t)
		rec := f.training(t, f.user.ID, model.TrainingStatusSucceeded)
		f.inference.On("RunInference", mock.Anything, &outbound.InferenceRequest{ModelVersion: *rec.Version, Prompt: "a portrait"}).
			Return("https://replicate.delivery/out.png", nil)

		gen, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: " a portrait ", TrainingID: &rec.ID})
		require.NoError(t, err)
		assert.Equal(t, quota.DefaultFreeGenerations-1, gen.Remaining)
		assert.Equal(t, rec.ID, *gen.Image.TrainingID)
		assert.Equal(t, *rec.Version, *gen.Image.ModelVersion)
		assert.Equal(t, "https://replicate.delivery/out.png", gen.Image.ImageURL)

		assert.Equal(t, 1, f.used(t))
		assert.Len(t, f.images(t), 1)
		f.inference.AssertExpectations(t)
	})

	t.Run("base model", func(t *testing.T) {
		f := newLinkerFixture(t)
		f.inference.On("RunInference", mock.Anything, &outbound.InferenceRequest{ModelVersion: baseVersion, Prompt: "a cat"}).
			Return("https://replicate.delivery/cat.png", nil)

		gen, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "a cat"})
		require.NoError(t, err)
		assert.Nil(t, gen.Image.ModelVersion)
		assert.Nil(t, gen.Image.TrainingID)
		assert.Equal(t, 1, f.used(t))
	})

	t.Run("base model not configured", func(t *testing.T) {
		f := newLinkerFixture(t)
		f.linker.config = &Config{}

		_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "a cat"})
		assert.ErrorIs(t, err, ErrBaseModelMissing)
		assert.Equal(t, 0, f.used(t))
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newLinkerFixture(t)
		foreign := f.training(t, uuid.New(), model.TrainingStatusSucceeded)
		missing := uuid.New()

		tests := []struct {
			name string
			in   *GenerateInput
			want error
		}{
			{"nil input", nil, ErrEmptyPrompt},
			{"blank prompt", &GenerateInput{Prompt: "   "}, ErrEmptyPrompt},
			{"missing training", &GenerateInput{Prompt: "x", TrainingID: &missing}, ErrTrainingNotFound},
			{"foreign training", &GenerateInput{Prompt: "x", TrainingID: &foreign.ID}, ErrTrainingNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.linker.Generate(ctx, f.user.ID, tt.in)
				assert.ErrorIs(t, err, tt.want)
				assert.True(t, apperrors.IsValidation(err))
			})
		}

		f.inference.AssertNotCalled(t, "RunInference", mock.Anything, mock.Anything)
		assert.Equal(t, 0, f.used(t))
	})

	t.Run("model not ready", func(t *testing.T) {
		f := newLinkerFixture(t)
		for _, status := range []model.TrainingStatus{
			model.TrainingStatusPending,
			model.TrainingStatusProcessing,
			model.TrainingStatusFailed,
		} {
			rec := f.training(t, f.user.ID, status)
			_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x", TrainingID: &rec.ID})
			assert.True(t, apperrors.IsModelNotReady(err), status.String())

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, status.String(), appErr.Details["status"])
		}
		f.inference.AssertNotCalled(t, "RunInference", mock.Anything, mock.Anything)
		assert.Equal(t, 0, f.used(t))
	})

	t.Run("quota exceeded skips inference", func(t *testing.T) {
		f := newLinkerFixture(t)
		f.user.GenerationsUsed = quota.DefaultFreeGenerations
		f.store.PutUser(f.user)

		_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x"})
		assert.True(t, apperrors.IsQuotaExceeded(err))

		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, 0, appErr.Details["remaining"])
		f.inference.AssertNotCalled(t, "RunInference", mock.Anything, mock.Anything)
		assert.Empty(t, f.images(t))
	})

	t.Run("inference failure releases quota", func(t *testing.T) {
		f := newLinkerFixture(t)
		f.inference.On("RunInference", mock.Anything, mock.Anything).Return("", errors.New("model crashed"))

		_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x"})
		assert.True(t, apperrors.IsProvider(err))
		assert.Equal(t, 0, f.used(t))
		assert.Empty(t, f.images(t))
	})

	t.Run("empty output releases quota", func(t *testing.T) {
		f := newLinkerFixture(t)
		f.inference.On("RunInference", mock.Anything, mock.Anything).Return("", nil)

		_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x"})
		assert.ErrorIs(t, err, ErrEmptyOutput)
		assert.True(t, apperrors.IsProvider(err))
		assert.Equal(t, 0, f.used(t))
	})

	t.Run("record failure releases quota", func(t *testing.T) {
		f := newLinkerFixture(t)
		f.inference.On("RunInference", mock.Anything, mock.Anything).Return("https://replicate.delivery/x.png", nil)
		f.store.InjectFault("generated.create", errors.New("connection lost"))

		_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x"})
		assert.Error(t, err)
		assert.Equal(t, 0, f.used(t))
		assert.Empty(t, f.images(t))
	})

	t.Run("cancelled request still releases", func(t *testing.T) {
		f := newLinkerFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		f.inference.On("RunInference", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return("", context.Canceled)

		_, err := f.linker.Generate(cctx, f.user.ID, &GenerateInput{Prompt: "x"})
		assert.Error(t, err)
		assert.Equal(t, 0, f.used(t))
	})
}

func TestLinker_ConcurrentGenerationsNeverOvershoot(t *testing.T) {
	ctx := context.Background()
	f := newLinkerFixture(t)
	f.inference.On("RunInference", mock.Anything, mock.Anything).Return("https://replicate.delivery/x.png", nil)

	const requests = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		exceeded int
	)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperrors.IsQuotaExceeded(err):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota.DefaultFreeGenerations, ok)
	assert.Equal(t, requests-quota.DefaultFreeGenerations, exceeded)
	assert.Len(t, f.images(t), quota.DefaultFreeGenerations)
	assert.Equal(t, quota.DefaultFreeGenerations, f.used(t))
}

func TestLinker_History(t *testing.T) {
	ctx := context.Background()
	f := newLinkerFixture(t)
	f.inference.On("RunInference", mock.Anything, mock.Anything).Return("https://replicate.delivery/x.png", nil)

	for range 3 {
		_, err := f.linker.Generate(ctx, f.user.ID, &GenerateInput{Prompt: "x"})
		require.NoError(t, err)
	}

	imgs, err := f.linker.History(ctx, f.user.ID, 2)
	require.NoError(t, err)
	assert.Len(t, imgs, 2)

	imgs, err = f.linker.History(ctx, f.user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, imgs, 3)
}
