package config

import (
	"fmt"
	"os"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreLevelDB  = "leveldb"
	StorePostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr   string
	LogLevel     string
	StaticDir    string
	SSEKeepalive time.Duration

	// Upstream JSON-RPC configuration
	RPCURL           string
	RPCEndpointLabel string

	// Scan cache configuration
	StoreBackend string
	LevelDBPath  string
	DatabaseURL  string

	// NATS configuration; empty disables the event mirror
	NATSURL string

	// Temporal configuration; empty host disables backfill
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":3000")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.StaticDir = os.Getenv("STATIC_DIR")

	keepalive, err := parseDuration("SSE_KEEPALIVE", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SSEKeepalive = keepalive
	}

	cfg.RPCURL = getEnvOrDefault("RPC_URL", "https://mainnet.fogo.io")
	cfg.RPCEndpointLabel = getEnvOrDefault("RPC_ENDPOINT_LABEL", "fogo-mainnet")

	cfg.StoreBackend = getEnvOrDefault("STORE_BACKEND", StoreMemory)
	cfg.LevelDBPath = getEnvOrDefault("LEVELDB_PATH", "./data/scans")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "fogoscan-backfill")

	// Return all parse errors before validating values
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("SERVER_ADDR is required"))
	}

	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPC_URL is required"))
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreLevelDB:
		if c.LevelDBPath == "" {
			errs = append(errs, fmt.Errorf("LEVELDB_PATH is required for the leveldb store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s; got %q",
			StoreMemory, StoreLevelDB, StorePostgres, c.StoreBackend))
	}

	if c.TemporalHost != "" {
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TEMPORAL_NAMESPACE is required when TEMPORAL_HOST is set"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TEMPORAL_TASK_QUEUE is required when TEMPORAL_HOST is set"))
		}
	}

	if c.SSEKeepalive < time.Second {
		errs = append(errs, fmt.Errorf("SSE_KEEPALIVE must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// BackfillEnabled reports whether a Temporal server is configured.
func (c *Config) BackfillEnabled() bool {
	return c.TemporalHost != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
