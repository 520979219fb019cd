package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Replicate  ReplicateConfig  `mapstructure:"replicate"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Training   TrainingConfig   `mapstructure:"training"`
	Dedupe     DedupeConfig     `mapstructure:"dedupe"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres" or "memory"
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	// Connection pool settings
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	// Timeout settings
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`

	// Keep-alive settings
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// ReplicateConfig holds training and inference provider configuration.
type ReplicateConfig struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`

	// TrainerVersion is "owner/model:version" of the training pipeline.
	TrainerVersion string `mapstructure:"trainer_version"`
	// Destination is "owner/model" that receives trained versions.
	Destination string `mapstructure:"destination"`
	// BaseModelVersion serves generations without a trained model.
	BaseModelVersion string `mapstructure:"base_model_version"`
	WebhookURL       string `mapstructure:"webhook_url"`
	WebhookSecret    string `mapstructure:"webhook_secret"`
	TriggerWord      string `mapstructure:"trigger_word"`
	TrainingSteps    int    `mapstructure:"training_steps"`

	// PredictWait is how long a prediction request blocks for its output.
	PredictWait time.Duration `mapstructure:"predict_wait"`

	// Circuit breaker settings
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"` // "s3", "minio" or "static"
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Bucket          string        `mapstructure:"bucket"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PublicBaseURL   string        `mapstructure:"public_base_url"` // static driver only
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// QuotaConfig holds quota configuration.
type QuotaConfig struct {
	FreeGenerations int `mapstructure:"free_generations"`
}

// TrainingConfig holds training submission limits.
type TrainingConfig struct {
	MinImages int `mapstructure:"min_images"`
	MaxImages int `mapstructure:"max_images"`
}

// DedupeConfig holds provider event deduplication configuration.
type DedupeConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Address   string `mapstructure:"address"` // empty disables the /metrics listener
}

// Load loads configuration from .env, file and environment, in increasing
// order of precedence. Extra search paths are consulted before the defaults.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/portraitlab")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	// Read from environment variables, e.g. PORTRAITLAB_QUOTA_FREE_GENERATIONS
	v.SetEnvPrefix("PORTRAITLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if password := os.Getenv("PORTRAITLAB_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("PORTRAITLAB_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("PORTRAITLAB_STORAGE_SECRET_KEY"); key != "" {
		cfg.Storage.SecretAccessKey = key
	}
	if secret := os.Getenv("REPLICATE_WEBHOOK_SECRET"); secret != "" && cfg.Replicate.WebhookSecret == "" {
		cfg.Replicate.WebhookSecret = secret
	}
	if token := os.Getenv("REPLICATE_API_TOKEN"); token != "" && cfg.Replicate.APIToken == "" {
		cfg.Replicate.APIToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid database.driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "s3", "minio", "static":
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}
	if c.Quota.FreeGenerations < 0 {
		return fmt.Errorf("quota.free_generations must not be negative")
	}
	if c.Training.MinImages < 1 || (c.Training.MaxImages > 0 && c.Training.MaxImages < c.Training.MinImages) {
		return fmt.Errorf("invalid training image limits %d..%d", c.Training.MinImages, c.Training.MaxImages)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "portraitlab")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 30*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 120*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Replicate defaults
	v.SetDefault("replicate.api_token", "")
	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.trainer_version", "")
	v.SetDefault("replicate.destination", "")
	v.SetDefault("replicate.base_model_version", "")
	v.SetDefault("replicate.webhook_url", "")
	v.SetDefault("replicate.webhook_secret", "")
	v.SetDefault("replicate.trigger_word", "TOK")
	v.SetDefault("replicate.training_steps", 1000)
	v.SetDefault("replicate.predict_wait", 60*time.Second)
	v.SetDefault("replicate.failure_threshold", 5)
	v.SetDefault("replicate.circuit_timeout", 60*time.Second)

	// Storage defaults
	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.bucket", "uploads")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.url_expiry", 2*time.Hour)

	// Quota defaults
	v.SetDefault("quota.free_generations", 5)

	// Training defaults
	v.SetDefault("training.min_images", 1)
	v.SetDefault("training.max_images", 50)

	// Dedupe defaults
	v.SetDefault("dedupe.ttl", 24*time.Hour)
	v.SetDefault("dedupe.key_prefix", "provider:event:")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.namespace", "portraitlab")
	v.SetDefault("metrics.address", "")
}
