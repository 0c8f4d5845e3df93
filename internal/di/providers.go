package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hchapman/WBOR-sub000/internal/config"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/cache"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/events"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence/dynamodb"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence/memory"
	"github.com/hchapman/WBOR-sub000/internal/interfaces/http/rest"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	"github.com/hchapman/WBOR-sub000/internal/service/station"
)

// ProvideLogger builds the zap logger described by cfg.Logging.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", string(cfg.Environment))), nil
}

// ProvideMetrics creates the Prometheus collector, or nil when metrics are
// disabled.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideTracing installs the global tracer provider. The cleanup flushes
// buffered spans.
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (TracingShutdown, func(), error) {
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	return shutdown, cleanup, nil
}

// TracingShutdown flushes and stops the tracer provider.
type TracingShutdown func(context.Context) error

// ProvideAWSConfig creates AWS configuration.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Database.Region),
	)
}

// ProvideStore opens the configured entity store, wrapped with metrics and
// spans.
func ProvideStore(cfg *config.Config, awsCfg aws.Config, metrics *observability.Collector, logger *zap.Logger) (persistence.Store, error) {
	var store persistence.Store
	switch cfg.Database.Provider {
	case "memory":
		logger.Info("using in-memory store")
		store = memory.NewStore()
	case "dynamodb":
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.Database.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Database.Endpoint)
			}
		})
		store = dynamodb.NewStore(client, dynamodb.StoreConfig{
			TableName:      cfg.Database.TableName,
			ConsistentRead: cfg.Database.ConsistentRead,
			MaxRetries:     cfg.Database.MaxRetries,
			RetryBackoff:   cfg.Database.RetryBaseDelay,
		}, logger)
		logger.Info("using DynamoDB store", zap.String("table", cfg.Database.TableName))
	default:
		return nil, fmt.Errorf("unknown database provider %q", cfg.Database.Provider)
	}
	return persistence.NewInstrumentedStore(store, metrics), nil
}

// ProvideCache builds the cache backend. Redis sits behind a circuit breaker;
// every backend is instrumented when metrics are on.
func ProvideCache(ctx context.Context, cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) (cache.Cache, func(), error) {
	var (
		backend cache.Cache
		cleanup = func() {}
	)
	switch strings.ToLower(cfg.Cache.Provider) {
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Cache.Redis.URL, logger)
		if err != nil {
			return nil, nil, err
		}
		redisCache := cache.NewRedisCache(client, cfg.Cache.KeyPrefix)
		cleanup = func() {
			if err := redisCache.Close(); err != nil {
				logger.Warn("redis close failed", zap.Error(err))
			}
		}
		backend = redisCache
		if cfg.Cache.Breaker.Enabled {
			bc := cache.DefaultBreakerConfig("redis")
			bc.FailureThreshold = cfg.Cache.Breaker.FailureThreshold
			bc.MinRequests = cfg.Cache.Breaker.MinimumRequests
			bc.Timeout = cfg.Cache.Breaker.OpenDuration
			bc.Metrics = metrics
			backend = cache.NewBreakerCache(backend, bc, logger)
		}
	case "memory":
		mc := cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.MaxMemory, logger)
		mc.StartCleanup(ctx, time.Minute)
		backend = mc
	case "none":
		backend = cache.NewNoopCache()
	default:
		return nil, nil, fmt.Errorf("unknown cache provider %q", cfg.Cache.Provider)
	}
	if metrics != nil {
		backend = cache.NewInstrumentedCache(backend, metrics)
	}
	logger.Info("cache ready", zap.String("provider", cfg.Cache.Provider))
	return backend, cleanup, nil
}

// ProvidePublisher creates the play event publisher.
func ProvidePublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) events.Publisher {
	if cfg.Events.Provider != "eventbridge" {
		return events.NoopPublisher{}
	}
	return events.NewEventBridgePublisher(awseventbridge.NewFromConfig(awsCfg), cfg.Events.EventBusName, logger)
}

// ProvideDeps bundles the collaborators of every cache component.
func ProvideDeps(cfg *config.Config, store persistence.Store, c cache.Cache, metrics *observability.Collector, logger *zap.Logger) repository.Deps {
	return repository.Deps{
		Store:         store,
		Cache:         c,
		Logger:        logger,
		Metrics:       metrics,
		Keys:          repository.DefaultKeyTemplates(),
		Now:           time.Now,
		MaxFetchPages: cfg.Database.MaxFetchPages,
	}
}

// ProvideSettings maps the cache configuration onto the station services.
func ProvideSettings(cfg *config.Config) station.Settings {
	s := station.DefaultSettings()
	c := cfg.Cache
	s.EntityTTL = c.EntityTTL
	s.QueryTTL = c.QueryTTL
	s.LastWindow = c.LastN.Window
	s.LastGranularity = c.LastN.Granularity
	s.LastMaxEntries = c.LastN.MaxEntries
	s.LastPageSize = c.LastN.PageSize
	s.AutocompleteThreshold = c.Autocomplete.Threshold
	s.AutocompleteTTL = c.Autocomplete.TTL
	s.ChartWindow = c.Charts.Window
	s.ChartChunkSize = c.Charts.ChunkSize
	s.ChartMaxChunksPerCall = c.Charts.MaxChunksPerCall
	return s
}

// ProvideStation wires the station services.
func ProvideStation(deps repository.Deps, settings station.Settings, publisher events.Publisher) *station.Station {
	return station.New(deps, settings, publisher)
}

// ProvideRouter creates the HTTP router.
func ProvideRouter(cfg *config.Config, st *station.Station, metrics *observability.Collector, logger *zap.Logger, _ TracingShutdown) *rest.Router {
	opts := rest.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MetricsPath:    cfg.Metrics.Path,
	}
	if cfg.Tracing.Endpoint != "" {
		opts.TracingService = cfg.Tracing.ServiceName
	}
	return rest.NewRouter(st, metrics, logger, opts)
}
