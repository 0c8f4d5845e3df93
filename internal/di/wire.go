//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/hchapman/WBOR-sub000/internal/config"
)

// SuperSet is the main provider set containing all providers.
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracing,
	ProvideAWSConfig,
	ProvideStore,
	ProvideCache,
	ProvidePublisher,
	ProvideDeps,
	ProvideSettings,
	ProvideStation,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup releases
// the cache connection and flushes spans.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
