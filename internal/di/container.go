// Package di assembles the application from its configuration.
package di

import (
	"go.uber.org/zap"

	"github.com/hchapman/WBOR-sub000/internal/config"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/cache"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/events"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/interfaces/http/rest"
	"github.com/hchapman/WBOR-sub000/internal/service/station"
)

// Container holds all application dependencies.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Store     persistence.Store
	Cache     cache.Cache
	Publisher events.Publisher
	Station   *station.Station
	Router    *rest.Router
}
