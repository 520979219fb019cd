package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5, cfg.Quota.FreeGenerations)
	assert.Equal(t, 1, cfg.Training.MinImages)
	assert.Equal(t, 50, cfg.Training.MaxImages)
	assert.Equal(t, 24*time.Hour, cfg.Dedupe.TTL)
	assert.Equal(t, "https://api.replicate.com/v1", cfg.Replicate.BaseURL)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
database:
  driver: memory
quota:
  free_generations: 3
training:
  max_images: 20
replicate:
  destination: portraitlab/users
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("PORTRAITLAB_QUOTA_FREE_GENERATIONS", "7")
	t.Setenv("PORTRAITLAB_DB_PASSWORD", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 7, cfg.Quota.FreeGenerations, "env beats file")
	assert.Equal(t, 20, cfg.Training.MaxImages)
	assert.Equal(t, "portraitlab/users", cfg.Replicate.Destination)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORTRAITLAB_REPLICATE_WEBHOOK_URL=https://hooks.example.com/r8\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PORTRAITLAB_REPLICATE_WEBHOOK_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/r8", cfg.Replicate.WebhookURL)
}

func TestLoad_ReplicateTokenFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REPLICATE_API_TOKEN", "r8_token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "r8_token", cfg.Replicate.APIToken)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "postgres"},
			Storage:  StorageConfig{Driver: "minio"},
			Quota:    QuotaConfig{FreeGenerations: 5},
			Training: TrainingConfig{MinImages: 1, MaxImages: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown database driver", func(c *Config) { c.Database.Driver = "sqlite" }, true},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "gcs" }, true},
		{"negative allowance", func(c *Config) { c.Quota.FreeGenerations = -1 }, true},
		{"zero min images", func(c *Config) { c.Training.MinImages = 0 }, true},
		{"max below min", func(c *Config) { c.Training.MinImages = 5; c.Training.MaxImages = 2 }, true},
		{"unbounded max", func(c *Config) { c.Training.MaxImages = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := &DatabaseConfig{Host: "db", Port: 5432, User: "app", Database: "portraitlab", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=app dbname=portraitlab sslmode=require", c.DSN())

	c.Password = "pw"
	assert.Contains(t, c.DSN(), "password=pw")
}
