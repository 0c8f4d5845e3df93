// Package config loads the station backend configuration from defaults, an
// optional YAML file and environment variables, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// IsValid reports whether e is a known environment.
func (e Environment) IsValid() bool {
	switch e {
	case Development, Staging, Production:
		return true
	}
	return false
}

// Config is the whole application configuration.
type Config struct {
	Environment Environment `yaml:"environment"`
	Server      Server      `yaml:"server"`
	Database    Database    `yaml:"database"`
	Cache       Cache       `yaml:"cache"`
	Events      Events      `yaml:"events"`
	Metrics     Metrics     `yaml:"metrics"`
	Tracing     Tracing     `yaml:"tracing"`
	Logging     Logging     `yaml:"logging"`

	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// Database selects and configures the entity store.
type Database struct {
	Provider       string        `yaml:"provider"` // dynamodb or memory
	TableName      string        `yaml:"table_name"`
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"` // local DynamoDB
	ConsistentRead bool          `yaml:"consistent_read"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	MaxFetchPages  int           `yaml:"max_fetch_pages"`
}

// Cache selects the cache backend and sizes every cached family.
type Cache struct {
	Provider  string        `yaml:"provider"` // redis, memory or none
	MaxItems  int           `yaml:"max_items"`
	MaxMemory int64         `yaml:"max_memory"`
	KeyPrefix string        `yaml:"key_prefix"`
	Redis     RedisConfig   `yaml:"redis"`
	Breaker   BreakerConfig `yaml:"breaker"`

	EntityTTL time.Duration `yaml:"entity_ttl"`
	QueryTTL  time.Duration `yaml:"query_ttl"`

	LastN        LastN        `yaml:"last_n"`
	Autocomplete Autocomplete `yaml:"autocomplete"`
	Charts       Charts       `yaml:"charts"`
}

// RedisConfig locates the Redis server.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// BreakerConfig tunes the circuit breaker around the cache backend.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinimumRequests  uint32        `yaml:"minimum_requests"`
	OpenDuration     time.Duration `yaml:"open_duration"`
}

// LastN sizes the most recent lists.
type LastN struct {
	Window      time.Duration `yaml:"window"`
	Granularity time.Duration `yaml:"granularity"`
	MaxEntries  int           `yaml:"max_entries"`
	PageSize    int           `yaml:"page_size"`
}

// Autocomplete sizes the prefix caches.
type Autocomplete struct {
	Threshold int           `yaml:"threshold"`
	TTL       time.Duration `yaml:"ttl"`
}

// Charts sizes the play count charts.
type Charts struct {
	Window           time.Duration `yaml:"window"`
	ChunkSize        int           `yaml:"chunk_size"`
	MaxChunksPerCall int           `yaml:"max_chunks_per_call"`
}

// Events configures event publication.
type Events struct {
	Provider     string `yaml:"provider"` // eventbridge or none
	EventBusName string `yaml:"event_bus_name"`
}

// Metrics configures Prometheus.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Validate checks the configuration for values the application cannot run
// with.
func (c *Config) Validate() error {
	var errs []error
	if !c.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	switch c.Database.Provider {
	case "dynamodb":
		if c.Database.TableName == "" {
			errs = append(errs, errors.New("database table name is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database provider %q", c.Database.Provider))
	}
	switch c.Cache.Provider {
	case "redis":
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("redis url is required for the redis cache"))
		}
	case "memory":
		if c.Cache.MaxItems <= 0 {
			errs = append(errs, errors.New("cache max items must be positive"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown cache provider %q", c.Cache.Provider))
	}
	if c.Cache.Breaker.FailureThreshold < 0 || c.Cache.Breaker.FailureThreshold > 1 {
		errs = append(errs, errors.New("breaker failure threshold must be within [0, 1]"))
	}
	if c.Cache.LastN.Window <= 0 || c.Cache.LastN.Granularity <= 0 {
		errs = append(errs, errors.New("last-n window and granularity must be positive"))
	}
	if c.Cache.Autocomplete.Threshold <= 0 {
		errs = append(errs, errors.New("autocomplete threshold must be positive"))
	}
	if c.Events.Provider == "eventbridge" && c.Events.EventBusName == "" {
		errs = append(errs, errors.New("event bus name is required for eventbridge"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
