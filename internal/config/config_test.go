package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NIMBUS_ACCESS_KEY_ID", "key-1")
	t.Setenv("NIMBUS_ACCESS_KEY_SECRET", "c2VjcmV0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key-1", cfg.AccessKeyID)
	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, "./nimbus.db", cfg.SQLitePath)
	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "localhost", cfg.APIHost)
	assert.Equal(t, 2*time.Second, cfg.JobTransitionLatency)
	assert.Equal(t, 30*time.Second, cfg.MessageLockDuration)
	assert.Equal(t, "http://localhost:8080", cfg.Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NIMBUS_ACCESS_KEY_ID", "key-1")
	t.Setenv("NIMBUS_ACCESS_KEY_SECRET", "c2VjcmV0")
	t.Setenv("STORAGE_TYPE", "postgres")
	t.Setenv("POSTGRES_URL", "postgres://localhost/nimbus")
	t.Setenv("API_PORT", "9090")
	t.Setenv("JOB_TRANSITION_LATENCY", "150ms")
	t.Setenv("MESSAGE_LOCK_DURATION", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StorageType)
	assert.Equal(t, "postgres://localhost/nimbus", cfg.PostgresURL)
	assert.Equal(t, "9090", cfg.APIPort)
	assert.Equal(t, 150*time.Millisecond, cfg.JobTransitionLatency)
	assert.Equal(t, time.Minute, cfg.MessageLockDuration)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("JOB_TRANSITION_LATENCY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.JobTransitionLatency)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AccessKeyID:          "key-1",
			AccessKeySecret:      "c2VjcmV0",
			StorageType:          "sqlite",
			JobTransitionLatency: time.Second,
			MessageLockDuration:  time.Second,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"missing key id", func(c *Config) { c.AccessKeyID = "" }, "NIMBUS_ACCESS_KEY_ID"},
		{"missing secret", func(c *Config) { c.AccessKeySecret = "" }, "NIMBUS_ACCESS_KEY_SECRET"},
		{"unknown storage", func(c *Config) { c.StorageType = "mysql" }, "STORAGE_TYPE"},
		{"postgres without url", func(c *Config) { c.StorageType = "postgres" }, "POSTGRES_URL"},
		{"negative transition latency", func(c *Config) { c.JobTransitionLatency = -time.Second }, "JOB_TRANSITION_LATENCY"},
		{"zero lock duration", func(c *Config) { c.MessageLockDuration = 0 }, "MESSAGE_LOCK_DURATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}
