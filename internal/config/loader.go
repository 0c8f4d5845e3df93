package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults(env Environment) *Config {
	cfg := &Config{
		Environment: env,
		Server: Server{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Database: Database{
			Provider:       "dynamodb",
			TableName:      "wbor-" + strings.ToLower(string(env)),
			Region:         "us-east-1",
			MaxRetries:     3,
			RetryBaseDelay: 100 * time.Millisecond,
			MaxFetchPages:  10,
		},
		Cache: Cache{
			Provider:  "memory",
			MaxItems:  10000,
			MaxMemory: 64 << 20,
			KeyPrefix: "wbor:",
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 0.5,
				MinimumRequests:  10,
				OpenDuration:     30 * time.Second,
			},
			EntityTTL: time.Hour,
			QueryTTL:  10 * time.Minute,
			LastN: LastN{
				Window:      7 * 24 * time.Hour,
				Granularity: time.Hour,
				MaxEntries:  200,
				PageSize:    20,
			},
			Autocomplete: Autocomplete{
				Threshold: 20,
				TTL:       6 * time.Hour,
			},
			Charts: Charts{
				Window:           7 * 24 * time.Hour,
				ChunkSize:        200,
				MaxChunksPerCall: 5,
			},
		},
		Events: Events{
			Provider:     "none",
			EventBusName: "default",
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "wbor",
			Path:      "/metrics",
		},
		Tracing: Tracing{
			ServiceName: "wbor-station",
			SampleRate:  0.1,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
	if env == Development {
		cfg.Database.Provider = "memory"
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "console"
		cfg.Tracing.SampleRate = 1
	}
	return cfg
}

// Load builds the configuration: defaults for the environment, then the
// YAML file named by CONFIG_FILE when set, then environment variables.
func Load() (*Config, error) {
	env := Environment(strings.ToLower(getEnv("ENVIRONMENT", string(Development))))
	cfg := Defaults(env)
	cfg.LoadedFrom = []string{"defaults"}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for main functions.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	c.LoadedFrom = append(c.LoadedFrom, path)
	return nil
}

func (c *Config) applyEnv() {
	if val := os.Getenv("SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Server.Port = port
		}
	}
	if val := os.Getenv("STORE_PROVIDER"); val != "" {
		c.Database.Provider = val
	}
	if val := os.Getenv("TABLE_NAME"); val != "" {
		c.Database.TableName = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		c.Database.Region = val
	}
	if val := os.Getenv("DYNAMODB_ENDPOINT"); val != "" {
		c.Database.Endpoint = val
	}
	if val := os.Getenv("CACHE_TYPE"); val != "" {
		c.Cache.Provider = val
	}
	if val := os.Getenv("REDIS_URL"); val != "" {
		c.Cache.Redis.URL = val
	}
	if val := os.Getenv("EVENT_BUS_NAME"); val != "" {
		c.Events.Provider = "eventbridge"
		c.Events.EventBusName = val
	}
	if val := os.Getenv("ENABLE_METRICS"); val != "" {
		c.Metrics.Enabled = parseBool(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Logging.Level = strings.ToLower(val)
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}
