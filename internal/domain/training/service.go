package training

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/portraitlab/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	defaultMinImages   = 1
	defaultMaxImages   = 50
	defaultImageURLTTL = 2 * time.Hour
	cancelTimeout      = 10 * time.Second

	failedMessage   = "training failed"
	canceledMessage = "training canceled"
)

// Config holds training configuration.
type Config struct {
	MinImages   int
	MaxImages   int
	ImageURLTTL time.Duration
}

// DefaultConfig returns default training configuration.
func DefaultConfig() *Config {
	return &Config{
		MinImages:   defaultMinImages,
		MaxImages:   defaultMaxImages,
		ImageURLTTL: defaultImageURLTTL,
	}
}

// SubmitInput is a request to train a model on uploaded images.
type SubmitInput struct {
	ImageIDs []uuid.UUID `json:"image_ids"`
	Name     string      `json:"name"`
}

// UpdateResult reports how a provider update was handled.
type UpdateResult struct {
	Outcome  Outcome               `json:"outcome"`
	Training *model.TrainingRecord `json:"training,omitempty"`
}

// Service drives training records through their lifecycle.
type Service struct {
	trainingDB outbound.TrainingDatabasePort
	imageDB    outbound.UploadedImageDatabasePort
	txPort     outbound.TransactionPort
	storage    outbound.ImageStoragePort
	provider   outbound.TrainingProviderPort
	sm         *StateMachine
	config     *Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService creates a new training service.
func NewService(
	trainingDB outbound.TrainingDatabasePort,
	imageDB outbound.UploadedImageDatabasePort,
	txPort outbound.TransactionPort,
	storage outbound.ImageStoragePort,
	provider outbound.TrainingProviderPort,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	return &Service{
		trainingDB: trainingDB,
		imageDB:    imageDB,
		txPort:     txPort,
		storage:    storage,
		provider:   provider,
		sm:         NewStateMachine(),
		config:     config,
		metrics:    m,
		logger:     logger,
	}
}

// Submit validates the images, starts a provider job and records it.
//
// The provider is called outside any transaction. The record and the image
// attachments are written together afterwards; if that fails the job is
// cancelled on a best-effort basis and nothing is left behind.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in *SubmitInput) (*model.TrainingRecord, error) {
	ids, err := s.normalizeImageIDs(in)
	if err != nil {
		s.metrics.RecordTrainingSubmission("rejected")
		return nil, err
	}

	images, err := s.imageDB.FindByIDs(ctx, ids)
	if err != nil {
		s.metrics.RecordTrainingSubmission("error")
		return nil, fmt.Errorf("load images: %w", err)
	}
	if err := checkImages(userID, ids, images); err != nil {
		s.metrics.RecordTrainingSubmission("rejected")
		return nil, err
	}

	urls, err := s.resolveURLs(ctx, ids, images)
	if err != nil {
		s.metrics.RecordTrainingSubmission("error")
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	jobID, err := s.provider.EnqueueTraining(ctx, &outbound.TrainingJob{
		UserID:    userID,
		Name:      name,
		ImageURLs: urls,
	})
	if err != nil {
		s.metrics.RecordTrainingSubmission("provider_error")
		s.logger.Warn("enqueue training failed",
			zap.String("user_id", userID.String()),
			zap.Int("images", len(ids)),
			zap.Error(err),
		)
		return nil, apperrors.Provider("enqueue training", err)
	}

	record := &model.TrainingRecord{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Status:      model.TrainingStatusPending,
		ReplicateID: jobID,
	}

	err = s.txPort.RunInTransaction(ctx, func(txCtx context.Context) error {
		locked, err := s.imageDB.LockByIDs(txCtx, ids)
		if err != nil {
			return fmt.Errorf("lock images: %w", err)
		}
		if err := checkImages(userID, ids, locked); err != nil {
			return err
		}
		if err := s.trainingDB.Create(txCtx, record); err != nil {
			return fmt.Errorf("create training: %w", err)
		}
		attached, err := s.imageDB.AttachToTraining(txCtx, ids, record.ID)
		if err != nil {
			return fmt.Errorf("attach images: %w", err)
		}
		if attached != int64(len(ids)) {
			return ErrConcurrentAttachment
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordTrainingSubmission("error")
		s.cancelJob(ctx, jobID)
		return nil, fmt.Errorf("submit training: %w", err)
	}

	s.metrics.RecordTrainingSubmission("accepted")
	s.logger.Info("training submitted",
		zap.String("training_id", record.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("replicate_id", jobID),
		zap.Int("images", len(ids)),
	)
	return record, nil
}

// OnProviderUpdate applies a provider status report. Duplicate, stale and
// late deliveries are absorbed; only an update that can move the record
// forward writes anything.
func (s *Service) OnProviderUpdate(ctx context.Context, u *outbound.ProviderUpdate) (*UpdateResult, error) {
	if u == nil || strings.TrimSpace(u.JobID) == "" {
		return nil, ErrInvalidUpdate
	}
	to, err := s.sm.StatusFor(u.State)
	if err != nil {
		return nil, err
	}
	if to == model.TrainingStatusSucceeded && strings.TrimSpace(u.Version) == "" {
		return nil, ErrMissingVersion
	}

	record, err := s.trainingDB.GetByReplicateID(ctx, u.JobID)
	if err != nil {
		return nil, fmt.Errorf("get training: %w", err)
	}
	if record == nil {
		s.metrics.RecordTrainingUpdate(OutcomeUnknownJob.String(), string(u.State))
		s.logger.Warn("provider update for unknown job",
			zap.String("replicate_id", u.JobID),
			zap.String("state", string(u.State)),
		)
		return &UpdateResult{Outcome: OutcomeUnknownJob}, nil
	}

	outcome := s.sm.Classify(record.Status, to)
	if outcome != OutcomeApplied {
		s.metrics.RecordTrainingUpdate(outcome.String(), string(u.State))
		s.logger.Debug("provider update not applied",
			zap.String("training_id", record.ID.String()),
			zap.String("status", record.Status.String()),
			zap.String("state", string(u.State)),
			zap.String("outcome", outcome.String()),
		)
		return &UpdateResult{Outcome: outcome, Training: record}, nil
	}

	tr := buildTransition(record.Status, to, u)
	applied, err := s.trainingDB.Transition(ctx, record.ID, tr)
	if err != nil {
		return nil, fmt.Errorf("transition training: %w", err)
	}
	if !applied {
		s.logger.Info("training transition lost a race",
			zap.String("training_id", record.ID.String()),
			zap.String("to", to.String()),
		)
		return nil, ErrConcurrentTransition
	}

	record.Status = tr.To
	if tr.Version != nil {
		record.Version = tr.Version
	}
	if tr.Error != nil {
		record.Error = tr.Error
	}
	if tr.CompletedAt != nil {
		record.CompletedAt = tr.CompletedAt
	}

	s.metrics.RecordTrainingUpdate(OutcomeApplied.String(), string(u.State))
	s.logger.Info("training status changed",
		zap.String("training_id", record.ID.String()),
		zap.String("replicate_id", record.ReplicateID),
		zap.String("from", tr.From.String()),
		zap.String("to", tr.To.String()),
	)
	return &UpdateResult{Outcome: OutcomeApplied, Training: record}, nil
}

// Get returns one of the user's trainings.
func (s *Service) Get(ctx context.Context, userID, trainingID uuid.UUID) (*model.TrainingRecord, error) {
	record, err := s.trainingDB.GetByID(ctx, trainingID)
	if err != nil {
		return nil, fmt.Errorf("get training: %w", err)
	}
	if record == nil || !record.BelongsTo(userID) {
		return nil, ErrTrainingNotFound
	}
	return record, nil
}

// List returns the user's trainings, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*model.TrainingRecord, error) {
	records, err := s.trainingDB.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trainings: %w", err)
	}
	return records, nil
}

// --- Helpers ---

func (s *Service) normalizeImageIDs(in *SubmitInput) ([]uuid.UUID, error) {
	if in == nil {
		return nil, ErrTooFewImages
	}
	seen := make(map[uuid.UUID]struct{}, len(in.ImageIDs))
	ids := make([]uuid.UUID, 0, len(in.ImageIDs))
	for _, id := range in.ImageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) < s.config.MinImages || len(ids) == 0 {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewImages, len(ids), max(s.config.MinImages, 1))
	}
	if s.config.MaxImages > 0 && len(ids) > s.config.MaxImages {
		return nil, fmt.Errorf("%w: got %d, limit %d", ErrTooManyImages, len(ids), s.config.MaxImages)
	}
	return ids, nil
}

// checkImages verifies every id resolved to an unattached image owned by userID.
func checkImages(userID uuid.UUID, ids []uuid.UUID, images []*model.UploadedImage) error {
	byID := make(map[uuid.UUID]*model.UploadedImage, len(images))
	for _, img := range images {
		byID[img.ID] = img
	}
	for _, id := range ids {
		img, ok := byID[id]
		switch {
		case !ok:
			return fmt.Errorf("%w: %s", ErrImageNotFound, id)
		case img.UserID != userID:
			return fmt.Errorf("%w: %s", ErrImageNotOwned, id)
		case img.IsAttached():
			return fmt.Errorf("%w: %s", ErrImageAttached, id)
		}
	}
	return nil
}

func (s *Service) resolveURLs(ctx context.Context, ids []uuid.UUID, images []*model.UploadedImage) ([]string, error) {
	byID := make(map[uuid.UUID]*model.UploadedImage, len(images))
	for _, img := range images {
		byID[img.ID] = img
	}
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		url, err := s.storage.GetPresignedURL(ctx, byID[id].StorageKey, s.config.ImageURLTTL)
		if err != nil {
			return nil, apperrors.Internal("resolve image url", err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// cancelJob cancels an orphaned provider job. Failures are only logged.
func (s *Service) cancelJob(ctx context.Context, jobID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if err := s.provider.CancelTraining(cctx, jobID); err != nil {
		s.logger.Warn("cancel orphaned training job failed",
			zap.String("replicate_id", jobID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("cancelled orphaned training job", zap.String("replicate_id", jobID))
}

func buildTransition(from, to model.TrainingStatus, u *outbound.ProviderUpdate) *outbound.TrainingTransition {
	tr := &outbound.TrainingTransition{From: from, To: to}
	if !to.IsTerminal() {
		return tr
	}

	now := time.Now().UTC()
	tr.CompletedAt = &now
	switch to {
	case model.TrainingStatusSucceeded:
		version := strings.TrimSpace(u.Version)
		tr.Version = &version
	case model.TrainingStatusFailed:
		msg := strings.TrimSpace(u.Error)
		if msg == "" {
			msg = failedMessage
			if u.State == outbound.ProviderJobCanceled {
				msg = canceledMessage
			}
		}
		tr.Error = &msg
	}
	return tr
}
