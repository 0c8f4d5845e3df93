package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hchapman/WBOR-sub000/internal/config"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/cache"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/events"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
)

func TestInitializeContainer_Development(t *testing.T) {
	cfg := config.Defaults(config.Development)

	container, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.NotNil(t, container.Station)
	assert.NotNil(t, container.Metrics)
	assert.IsType(t, events.NoopPublisher{}, container.Publisher)
	assert.IsType(t, &cache.InstrumentedCache{}, container.Cache)

	w := httptest.NewRecorder()
	container.Router.Setup().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProvideCache_Redis(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := config.Defaults(config.Development)
	cfg.Cache.Provider = "redis"
	cfg.Cache.Redis.URL = "redis://" + srv.Addr()

	c, cleanup, err := ProvideCache(context.Background(), cfg, observability.NewCollector("test"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "v1:entity:Album:a", []byte("odelay"), time.Minute))
	got, ok, err := c.Get(ctx, "v1:entity:Album:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("odelay"), got)
	assert.Len(t, srv.Keys(), 1)
}

func TestProvideStore_UnknownProvider(t *testing.T) {
	cfg := config.Defaults(config.Development)
	cfg.Database.Provider = "postgres"

	_, err := ProvideStore(cfg, awsConfigForTest(), nil, zap.NewNop())
	assert.ErrorContains(t, err, "unknown database provider")
}

func TestProvideSettings(t *testing.T) {
	cfg := config.Defaults(config.Production)
	cfg.Cache.LastN.MaxEntries = 50
	cfg.Cache.Autocomplete.Threshold = 7

	s := ProvideSettings(cfg)
	assert.Equal(t, 50, s.LastMaxEntries)
	assert.Equal(t, 7, s.AutocompleteThreshold)
	assert.Equal(t, cfg.Cache.Charts.Window, s.ChartWindow)
}

func TestProvideLogger(t *testing.T) {
	cfg := config.Defaults(config.Production)
	cfg.Logging.Level = "warn"

	logger, err := ProvideLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}

func awsConfigForTest() aws.Config {
	return aws.Config{Region: "us-east-1"}
}
