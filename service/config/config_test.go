package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVER_ADDR", "LOG_LEVEL", "STATIC_DIR", "SSE_KEEPALIVE",
	"RPC_URL", "RPC_ENDPOINT_LABEL",
	"STORE_BACKEND", "LEVELDB_PATH", "DATABASE_URL",
	"NATS_URL",
	"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":3000", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://mainnet.fogo.io", cfg.RPCURL)
	assert.Equal(t, "fogo-mainnet", cfg.RPCEndpointLabel)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "./data/scans", cfg.LevelDBPath)
	assert.Equal(t, 10*time.Second, cfg.SSEKeepalive)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "fogoscan-backfill", cfg.TemporalTaskQueue)
	assert.Empty(t, cfg.NATSURL)
	assert.False(t, cfg.BackfillEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("RPC_URL", "http://localhost:8899")
	t.Setenv("STORE_BACKEND", "leveldb")
	t.Setenv("LEVELDB_PATH", "/tmp/scans")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("TEMPORAL_HOST", "localhost:7233")
	t.Setenv("SSE_KEEPALIVE", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ServerAddr)
	assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
	assert.Equal(t, StoreLevelDB, cfg.StoreBackend)
	assert.Equal(t, "/tmp/scans", cfg.LevelDBPath)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.True(t, cfg.BackfillEnabled())
	assert.Equal(t, 30*time.Second, cfg.SSEKeepalive)
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_UnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND must be one of")
}

func TestLoad_InvalidKeepalive(t *testing.T) {
	clearEnv(t)
	t.Setenv("SSE_KEEPALIVE", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerAddr:   ":3000",
			RPCURL:       "https://mainnet.fogo.io",
			StoreBackend: StoreMemory,
			SSEKeepalive: 10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing rpc", mutate: func(c *Config) { c.RPCURL = "" }, wantErr: "RPC_URL is required"},
		{name: "keepalive too short", mutate: func(c *Config) { c.SSEKeepalive = 10 * time.Millisecond }, wantErr: "SSE_KEEPALIVE"},
		{name: "leveldb without path", mutate: func(c *Config) { c.StoreBackend = StoreLevelDB }, wantErr: "LEVELDB_PATH"},
		{
			name: "temporal without queue",
			mutate: func(c *Config) {
				c.TemporalHost = "localhost:7233"
				c.TemporalNamespace = "default"
			},
			wantErr: "TEMPORAL_TASK_QUEUE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
