package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/domain/artifact"
	"github.com/portraitlab/server/internal/domain/quota"
	"github.com/portraitlab/server/internal/domain/training"
	"github.com/portraitlab/server/internal/infra/events"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/inbound"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/portraitlab/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	defaultDedupeTTL = 24 * time.Hour
	dedupeCacheName  = "provider_events"
)

// Config holds lifecycle configuration.
type Config struct {
	// DedupeTTL is how long an applied provider delivery is remembered.
	DedupeTTL time.Duration
}

// EventPublisher announces committed lifecycle changes.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Manager is the stateless entry point over the ledger, the training state
// machine and the artifact linker. It holds no per-user state between calls.
type Manager struct {
	ledger    *quota.Ledger
	trainings *training.Service
	linker    *artifact.Linker
	provider  outbound.TrainingProviderPort
	dedupe    outbound.ProviderEventDedupePort
	events    EventPublisher
	config    *Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewManager creates a new lifecycle manager. dedupe and publisher may be nil.
func NewManager(
	ledger *quota.Ledger,
	trainings *training.Service,
	linker *artifact.Linker,
	provider outbound.TrainingProviderPort,
	dedupe outbound.ProviderEventDedupePort,
	publisher EventPublisher,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Manager {
	if config == nil {
		config = &Config{}
	}
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = defaultDedupeTTL
	}
	return &Manager{
		ledger:    ledger,
		trainings: trainings,
		linker:    linker,
		provider:  provider,
		dedupe:    dedupe,
		events:    publisher,
		config:    config,
		metrics:   m,
		logger:    logger,
	}
}

// Compile-time interface check
var _ inbound.LifecycleDomain = (*Manager)(nil)

// RequestTraining submits a training for the user.
func (m *Manager) RequestTraining(ctx context.Context, userID uuid.UUID, in *training.SubmitInput) (*model.TrainingRecord, error) {
	return m.trainings.Submit(ctx, userID, in)
}

// RequestGeneration generates one image for the user.
func (m *Manager) RequestGeneration(ctx context.Context, userID uuid.UUID, in *artifact.GenerateInput) (*artifact.Generation, error) {
	gen, err := m.linker.Generate(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.NewGenerationCreatedEvent(userID, gen.Image.ID, gen.Image.TrainingID, gen.Remaining))
	return gen, nil
}

// HandleProviderEvent applies a provider delivery.
//
// Deliveries already applied are short-circuited through the dedupe store.
// A delivery is remembered only after it was handled successfully and its job
// was known, since a webhook can outrun the commit of its own submission.
func (m *Manager) HandleProviderEvent(ctx context.Context, update *outbound.ProviderUpdate) (*training.UpdateResult, error) {
	if update == nil || strings.TrimSpace(update.JobID) == "" {
		return nil, training.ErrInvalidUpdate
	}
	key := update.DeliveryKey()

	if m.dedupe != nil {
		seen, err := m.dedupe.IsProcessed(ctx, key)
		if err != nil {
			m.logger.Warn("provider event dedupe lookup failed", zap.String("key", key), zap.Error(err))
		} else if seen {
			m.metrics.RecordCacheHit(dedupeCacheName)
			m.logger.Debug("provider event already processed", zap.String("key", key))
			return &training.UpdateResult{Outcome: training.OutcomeNoop}, nil
		} else {
			m.metrics.RecordCacheMiss(dedupeCacheName)
		}
	}

	result, err := m.trainings.OnProviderUpdate(ctx, update)
	if err != nil {
		return nil, err
	}

	if m.dedupe != nil && result.Outcome != training.OutcomeUnknownJob {
		if err := m.dedupe.MarkProcessed(ctx, key, m.config.DedupeTTL); err != nil {
			m.logger.Warn("provider event dedupe mark failed", zap.String("key", key), zap.Error(err))
		}
	}

	if result.Outcome == training.OutcomeApplied && result.Training != nil && result.Training.IsTerminal() {
		rec := result.Training
		m.publish(ctx, events.NewTrainingFinishedEvent(rec.UserID, rec.ID, rec.Status.String(), deref(rec.Version), deref(rec.Error)))
	}
	return result, nil
}

// SyncTraining polls the provider for a job and applies what it reports.
// Used when webhooks were lost.
func (m *Manager) SyncTraining(ctx context.Context, jobID string) (*training.UpdateResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, training.ErrInvalidUpdate
	}
	update, err := m.provider.GetTraining(ctx, jobID)
	if err != nil {
		return nil, apperrors.Provider("poll training", err)
	}
	return m.HandleProviderEvent(ctx, update)
}

// QuotaStatus returns the user's current quota.
func (m *Manager) QuotaStatus(ctx context.Context, userID uuid.UUID) (*quota.Status, error) {
	return m.ledger.Status(ctx, userID)
}

// GetTraining returns one of the user's trainings.
func (m *Manager) GetTraining(ctx context.Context, userID, trainingID uuid.UUID) (*model.TrainingRecord, error) {
	return m.trainings.Get(ctx, userID, trainingID)
}

// ListTrainings returns the user's trainings.
func (m *Manager) ListTrainings(ctx context.Context, userID uuid.UUID) ([]*model.TrainingRecord, error) {
	return m.trainings.List(ctx, userID)
}

// ListGenerations returns the user's most recent generated images.
func (m *Manager) ListGenerations(ctx context.Context, userID uuid.UUID, limit int) ([]*model.GeneratedImage, error) {
	images, err := m.linker.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return images, nil
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.events != nil {
		m.events.Publish(ctx, event)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
