package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/portraitlab/server/internal/domain/artifact"
	"github.com/portraitlab/server/internal/domain/lifecycle"
	"github.com/portraitlab/server/internal/domain/quota"
	"github.com/portraitlab/server/internal/domain/training"

	// Ports
	"github.com/portraitlab/server/internal/port/outbound"

	// Outbound adapters
	"github.com/portraitlab/server/internal/adapter/outbound/memory"
	minioadapter "github.com/portraitlab/server/internal/adapter/outbound/minio"
	"github.com/portraitlab/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/portraitlab/server/internal/adapter/outbound/redis"
	"github.com/portraitlab/server/internal/adapter/outbound/replicate"
	s3adapter "github.com/portraitlab/server/internal/adapter/outbound/s3"

	// Infrastructure
	"github.com/portraitlab/server/internal/infra/cache"
	"github.com/portraitlab/server/internal/infra/config"
	"github.com/portraitlab/server/internal/infra/database"
	"github.com/portraitlab/server/internal/infra/events"
	"github.com/portraitlab/server/internal/infra/httpclient"

	// Utils
	"github.com/portraitlab/server/internal/utils/logger"
	"github.com/portraitlab/server/internal/utils/metrics"
)

// predictionSlack covers the round trip around a held-open prediction.
const predictionSlack = 15 * time.Second

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideZapLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideHTTPClient,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideEventBus,
)

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return log, func() { _ = log.Sync() }, nil
}

// ProvideRegistry creates the metrics registry with runtime collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace, reg)
}

// ProvideHTTPClient creates a shared HTTP client with connection pooling.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return httpclient.New(cfg.HTTPClient,
		httpclient.WithMinTimeout(cfg.Replicate.PredictWait+predictionSlack),
		httpclient.WithUserAgent(httpclient.DefaultUserAgent),
	)
}

// ProvideDatabase opens Postgres. It returns a nil *gorm.DB for the memory driver.
func ProvideDatabase(cfg *config.Config, zapLog *zap.Logger) (*gorm.DB, func(), error) {
	if cfg.Database.Driver == "memory" {
		zapLog.Warn("using in-memory store, data is lost on exit")
		return nil, func() {}, nil
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			zapLog.Warn("close database", zap.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvideRedisClient creates a Redis client. Redis only backs event dedupe,
// so a failed connection is logged and the app continues without it.
func ProvideRedisClient(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (goredis.UniversalClient, func()) {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, continuing without event dedupe", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ===== Repository Providers =====

// Repositories groups the persistence ports of one backing store.
type Repositories struct {
	Users         outbound.UserDatabasePort
	Plans         outbound.PlanDatabasePort
	Subscriptions outbound.SubscriptionDatabasePort
	Trainings     outbound.TrainingDatabasePort
	Uploads       outbound.UploadedImageDatabasePort
	Generated     outbound.GeneratedImageDatabasePort
	Tx            outbound.TransactionPort

	// Memory is set only for the memory driver.
	Memory *memory.Store
}

// RepositorySet provides persistence ports.
var RepositorySet = wire.NewSet(
	ProvideRepositories,
	wire.FieldsOf(new(*Repositories), "Users", "Subscriptions", "Trainings", "Uploads", "Generated", "Tx"),
)

// ProvideRepositories selects the postgres or memory adapters.
func ProvideRepositories(cfg *config.Config, db *gorm.DB) (*Repositories, error) {
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		return &Repositories{
			Users:         memory.NewUserAdapter(store),
			Plans:         memory.NewPlanAdapter(store),
			Subscriptions: memory.NewSubscriptionAdapter(store),
			Trainings:     memory.NewTrainingAdapter(store),
			Uploads:       memory.NewUploadedImageAdapter(store),
			Generated:     memory.NewGeneratedImageAdapter(store),
			Tx:            store,
			Memory:        store,
		}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres driver without a database connection")
		}
		return &Repositories{
			Users:         postgres.NewUserAdapter(db),
			Plans:         postgres.NewPlanAdapter(db),
			Subscriptions: postgres.NewSubscriptionAdapter(db),
			Trainings:     postgres.NewTrainingAdapter(db),
			Uploads:       postgres.NewUploadedImageAdapter(db),
			Generated:     postgres.NewGeneratedImageAdapter(db),
			Tx:            postgres.NewTransactionAdapter(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// ===== External Adapter Providers =====

// AdapterSet provides storage, provider and dedupe adapters.
var AdapterSet = wire.NewSet(
	ProvideImageStorage,
	ProvideReplicateClient,
	wire.Bind(new(outbound.TrainingProviderPort), new(*replicate.Client)),
	wire.Bind(new(outbound.InferenceProviderPort), new(*replicate.Client)),
	ProvideEventDedupe,
)

// ProvideImageStorage selects the presigning backend.
func ProvideImageStorage(ctx context.Context, cfg *config.Config) (outbound.ImageStoragePort, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return s3adapter.NewImageStorageAdapter(ctx, cfg.Storage)
	case "minio":
		return minioadapter.NewImageStorageAdapter(cfg.Storage)
	case "static":
		return memory.NewStaticStorage(cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// ProvideReplicateClient creates the training and inference client.
func ProvideReplicateClient(cfg *config.Config, client *http.Client, m *metrics.Metrics, zapLog *zap.Logger) *replicate.Client {
	return replicate.NewClient(cfg.Replicate, client, m, zapLog.Named("replicate"))
}

// ProvideEventDedupe prefers Redis, falls back to the memory store, and
// returns nil when neither is available.
func ProvideEventDedupe(cfg *config.Config, redis goredis.UniversalClient, repos *Repositories) outbound.ProviderEventDedupePort {
	if redis != nil {
		return redisadapter.NewEventDedupe(redis, cfg.Dedupe.KeyPrefix)
	}
	if repos.Memory != nil {
		return memory.NewEventDedupe(repos.Memory)
	}
	return nil
}

// ProvideEventBus creates the lifecycle event bus with its standard handlers.
func ProvideEventBus(zapLog *zap.Logger) *events.Bus {
	bus := events.NewBus(zapLog.Named("events"))
	registerLifecycleHandlers(bus, zapLog.Named("notify"))
	return bus
}

// ===== Domain Providers =====

// DomainSet provides the lifecycle domains.
var DomainSet = wire.NewSet(
	ProvideLedger,
	ProvideTrainingService,
	ProvideLinker,
	ProvideManager,
	wire.Bind(new(lifecycle.EventPublisher), new(*events.Bus)),
)

// ProvideLedger creates the quota ledger.
func ProvideLedger(
	userDB outbound.UserDatabasePort,
	subscriptionDB outbound.SubscriptionDatabasePort,
	txPort outbound.TransactionPort,
	cfg *config.Config,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *quota.Ledger {
	return quota.NewLedger(userDB, subscriptionDB, txPort, quota.SystemClock{},
		&quota.Config{FreeGenerations: cfg.Quota.FreeGenerations}, m, zapLog.Named("quota"))
}

// ProvideTrainingService creates the training service.
func ProvideTrainingService(
	trainingDB outbound.TrainingDatabasePort,
	imageDB outbound.UploadedImageDatabasePort,
	txPort outbound.TransactionPort,
	storage outbound.ImageStoragePort,
	provider outbound.TrainingProviderPort,
	cfg *config.Config,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *training.Service {
	return training.NewService(trainingDB, imageDB, txPort, storage, provider, &training.Config{
		MinImages:   cfg.Training.MinImages,
		MaxImages:   cfg.Training.MaxImages,
		ImageURLTTL: cfg.Storage.URLExpiry,
	}, m, zapLog.Named("training"))
}

// ProvideLinker creates the artifact linker.
func ProvideLinker(
	trainingDB outbound.TrainingDatabasePort,
	generatedDB outbound.GeneratedImageDatabasePort,
	txPort outbound.TransactionPort,
	ledger *quota.Ledger,
	inference outbound.InferenceProviderPort,
	cfg *config.Config,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *artifact.Linker {
	return artifact.NewLinker(trainingDB, generatedDB, txPort, ledger, inference, &artifact.Config{
		BaseModelVersion: cfg.Replicate.BaseModelVersion,
	}, m, zapLog.Named("artifact"))
}

// ProvideManager creates the lifecycle manager.
func ProvideManager(
	ledger *quota.Ledger,
	trainings *training.Service,
	linker *artifact.Linker,
	provider outbound.TrainingProviderPort,
	dedupe outbound.ProviderEventDedupePort,
	publisher lifecycle.EventPublisher,
	cfg *config.Config,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) *lifecycle.Manager {
	return lifecycle.NewManager(ledger, trainings, linker, provider, dedupe, publisher,
		&lifecycle.Config{DedupeTTL: cfg.Dedupe.TTL}, m, zapLog.Named("lifecycle"))
}
