package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/portraitlab/server/internal/domain/lifecycle"
	"github.com/portraitlab/server/internal/infra/config"
)

// App holds the wired lifecycle manager and what its callers need besides it.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	DB       *gorm.DB // nil for the memory driver
	Repos    *Repositories
	Manager  *lifecycle.Manager
}
