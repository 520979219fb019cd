package inbound

import (
	"context"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/domain/artifact"
	"github.com/portraitlab/server/internal/domain/quota"
	"github.com/portraitlab/server/internal/domain/training"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
)

// LifecycleDomain defines the entry points the API layer and operators call.
type LifecycleDomain interface {
	RequestTraining(ctx context.Context, userID uuid.UUID, in *training.SubmitInput) (*model.TrainingRecord, error)
	RequestGeneration(ctx context.Context, userID uuid.UUID, in *artifact.GenerateInput) (*artifact.Generation, error)

	HandleProviderEvent(ctx context.Context, update *outbound.ProviderUpdate) (*training.UpdateResult, error)
	SyncTraining(ctx context.Context, jobID string) (*training.UpdateResult, error)

	QuotaStatus(ctx context.Context, userID uuid.UUID) (*quota.Status, error)
	GetTraining(ctx context.Context, userID, trainingID uuid.UUID) (*model.TrainingRecord, error)
	ListTrainings(ctx context.Context, userID uuid.UUID) ([]*model.TrainingRecord, error)
	ListGenerations(ctx context.Context, userID uuid.UUID, limit int) ([]*model.GeneratedImage, error)
}
