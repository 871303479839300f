package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Zero(t, cfg.MCPPort)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, DefaultMonitorConfig(), cfg.Monitor)
	assert.Equal(t, DefaultRollbackConfig(), cfg.Rollback)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("MODEL_REGISTRY_STORE", "memory")
	t.Setenv("MODEL_REGISTRY_MCP_PORT", "8081")
	t.Setenv("MODEL_REGISTRY_MONITOR_SLO_CHECK_INTERVAL", "15s")
	t.Setenv("MODEL_REGISTRY_MONITOR_AUTO_ROLLBACK_ENABLED", "false")
	t.Setenv("MODEL_REGISTRY_ROLLBACK_HEALTH_CHECK_RETRIES", "2")
	t.Setenv("MODEL_REGISTRY_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, uint16(8081), cfg.MCPPort)
	assert.Equal(t, 15*time.Second, cfg.Monitor.SLOCheckInterval)
	assert.False(t, cfg.Monitor.AutoRollbackEnabled)
	assert.Equal(t, 2, cfg.Rollback.HealthCheckRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:       StoreMemory,
			HealthProbe: ProbeLocal,
			LogFormat:   "json",
			Monitor:     DefaultMonitorConfig(),
			Rollback:    DefaultRollbackConfig(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, "unknown STORE"},
		{"postgres without url", func(c *Config) { c.Store = StorePostgres }, "DATABASE_URL"},
		{"unknown probe", func(c *Config) { c.HealthProbe = "grpc" }, "HEALTH_PROBE"},
		{"zero threshold", func(c *Config) { c.Monitor.AutoRollbackThreshold = 0 }, "AUTO_ROLLBACK_THRESHOLD"},
		{"zero slo interval", func(c *Config) { c.Monitor.SLOCheckInterval = 0 }, "SLO_CHECK_INTERVAL"},
		{"zero retries", func(c *Config) { c.Rollback.HealthCheckRetries = 0 }, "HEALTH_CHECK_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
