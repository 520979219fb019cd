package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/domain/quota"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/portraitlab/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	releaseTimeout      = 10 * time.Second
	defaultHistoryLimit = 50
)

// QuotaLedger is the part of the quota ledger a generation needs.
type QuotaLedger interface {
	CheckAndReserve(ctx context.Context, userID uuid.UUID) (*quota.Reservation, error)
	Commit(txCtx context.Context, res *quota.Reservation) error
	Release(ctx context.Context, res *quota.Reservation) error
}

// Config holds generation configuration.
type Config struct {
	// BaseModelVersion is used when no trained model is requested.
	BaseModelVersion string
}

// GenerateInput is a request for one image.
type GenerateInput struct {
	Prompt     string     `json:"prompt"`
	TrainingID *uuid.UUID `json:"training_id,omitempty"`
}

// Generation is a recorded image plus the quota left after it.
type Generation struct {
	Image     *model.GeneratedImage `json:"image"`
	Remaining int                   `json:"remaining"` // -1 for unlimited
}

// Linker turns finished trainings into generated images, charging quota for
// each one.
type Linker struct {
	trainingDB  outbound.TrainingDatabasePort
	generatedDB outbound.GeneratedImageDatabasePort
	txPort      outbound.TransactionPort
	ledger      QuotaLedger
	inference   outbound.InferenceProviderPort
	config      *Config
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewLinker creates a new artifact linker.
func NewLinker(
	trainingDB outbound.TrainingDatabasePort,
	generatedDB outbound.GeneratedImageDatabasePort,
	txPort outbound.TransactionPort,
	ledger QuotaLedger,
	inference outbound.InferenceProviderPort,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Linker {
	if config == nil {
		config = &Config{}
	}
	return &Linker{
		trainingDB:  trainingDB,
		generatedDB: generatedDB,
		txPort:      txPort,
		ledger:      ledger,
		inference:   inference,
		config:      config,
		metrics:     m,
		logger:      logger,
	}
}

// Generate produces one image from a trained model, or from the base model
// when no training is given.
//
// Quota is reserved before inference so concurrent requests cannot overshoot
// the allowance, and released again if the image cannot be produced or
// recorded. Inference never runs inside a transaction.
//
// A TrainingID that is unknown or owned by another user fails with a
// validation error (ErrTrainingNotFound); only a known, owned training that
// has not succeeded yields ModelNotReady.
func (l *Linker) Generate(ctx context.Context, userID uuid.UUID, in *GenerateInput) (*Generation, error) {
	if in == nil || strings.TrimSpace(in.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	prompt := strings.TrimSpace(in.Prompt)

	kind := "base"
	version := l.config.BaseModelVersion
	var modelVersion *string
	if in.TrainingID != nil {
		record, err := l.trainingDB.GetByID(ctx, *in.TrainingID)
		if err != nil {
			return nil, fmt.Errorf("get training: %w", err)
		}
		if record == nil || !record.BelongsTo(userID) {
			return nil, ErrTrainingNotFound
		}
		if record.Status != model.TrainingStatusSucceeded || record.Version == nil || *record.Version == "" {
			l.metrics.RecordGeneration("custom", "not_ready")
			return nil, apperrors.ModelNotReady(record.Status.String())
		}
		kind = "custom"
		version = *record.Version
		modelVersion = record.Version
	} else if version == "" {
		return nil, apperrors.Internal("generate", ErrBaseModelMissing)
	}

	res, err := l.ledger.CheckAndReserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		l.metrics.RecordGeneration(kind, "quota_exceeded")
		return nil, apperrors.QuotaExceeded(0)
	}

	imageURL, err := l.inference.RunInference(ctx, &outbound.InferenceRequest{
		ModelVersion: version,
		Prompt:       prompt,
	})
	if err == nil && imageURL == "" {
		err = ErrEmptyOutput
	}
	if err != nil {
		l.release(ctx, res)
		l.metrics.RecordGeneration(kind, "provider_error")
		l.logger.Warn("inference failed",
			zap.String("user_id", userID.String()),
			zap.String("model_version", version),
			zap.Error(err),
		)
		return nil, apperrors.Provider("run inference", err)
	}

	image := &model.GeneratedImage{
		ID:           uuid.New(),
		UserID:       userID,
		TrainingID:   in.TrainingID,
		ModelVersion: modelVersion,
		Prompt:       prompt,
		ImageURL:     imageURL,
	}
	err = l.txPort.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := l.generatedDB.Create(txCtx, image); err != nil {
			return fmt.Errorf("create generated image: %w", err)
		}
		return l.ledger.Commit(txCtx, res)
	})
	if err != nil {
		l.release(ctx, res)
		l.metrics.RecordGeneration(kind, "error")
		return nil, fmt.Errorf("record generation: %w", err)
	}

	l.metrics.RecordGeneration(kind, "ok")
	l.logger.Info("image generated",
		zap.String("image_id", image.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("model", kind),
		zap.Int("remaining", res.Remaining),
	)
	return &Generation{Image: image, Remaining: res.Remaining}, nil
}

// History returns the user's most recent generated images.
func (l *Linker) History(ctx context.Context, userID uuid.UUID, limit int) ([]*model.GeneratedImage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	images, err := l.generatedDB.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generated images: %w", err)
	}
	return images, nil
}

// release hands a reservation back, surviving a cancelled request context.
func (l *Linker) release(ctx context.Context, res *quota.Reservation) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := l.ledger.Release(rctx, res); err != nil {
		l.logger.Error("release quota reservation failed",
			zap.String("user_id", res.UserID.String()),
			zap.Error(err),
		)
	}
}
