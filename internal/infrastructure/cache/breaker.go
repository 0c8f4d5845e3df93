package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
)

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("cache: circuit open")

// BreakerConfig holds configuration for the cache circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold and MinRequests decide when to trip.
	FailureThreshold float64
	MinRequests      uint32
	// Metrics, when set, tracks the breaker state.
	Metrics *observability.Collector
}

// DefaultBreakerConfig returns the breaker settings used in production.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      10,
	}
}

// BreakerCache guards a remote cache with a circuit breaker. While open, every
// call fails fast with ErrBreakerOpen, which callers treat as a miss, so a
// dead cache server costs a store read instead of a network timeout.
type BreakerCache struct {
	inner Cache
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerCache wraps inner.
func NewBreakerCache(inner Cache, config BreakerConfig, logger *zap.Logger) *BreakerCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if config.Metrics != nil {
				config.Metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
			logger.Warn("Cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerCache{inner: inner, cb: cb}
}

// State reports the breaker state.
func (b *BreakerCache) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerCache) execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrBreakerOpen
	}
	return out, err
}

type getResult struct {
	value []byte
	ok    bool
}

func (b *BreakerCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := b.execute(func() (any, error) {
		v, ok, err := b.inner.Get(ctx, key)
		return getResult{v, ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := out.(getResult)
	return res.value, res.ok, nil
}

func (b *BreakerCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Set(ctx, key, value, ttl)
	})
	return err
}

func (b *BreakerCache) Delete(ctx context.Context, key string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Delete(ctx, key)
	})
	return err
}
