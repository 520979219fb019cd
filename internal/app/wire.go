//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/portraitlab/server/internal/infra/config"
)

// InitializeApp wires the application from configuration.
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		InfraSet,
		RepositorySet,
		AdapterSet,
		DomainSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
