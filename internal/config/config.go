package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Access key credential accepted by the server and used by the CLI
	AccessKeyID     string
	AccessKeySecret string // base64-encoded

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// How long accepted job transitions take to settle
	JobTransitionLatency time.Duration

	// Peek-lock duration for received messages
	MessageLockDuration time.Duration

	// CLI
	Endpoint string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		AccessKeyID:          getEnv("NIMBUS_ACCESS_KEY_ID", ""),
		AccessKeySecret:      getEnv("NIMBUS_ACCESS_KEY_SECRET", ""),
		StorageType:          getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:           getEnv("SQLITE_PATH", "./nimbus.db"),
		PostgresURL:          getEnv("POSTGRES_URL", ""),
		APIPort:              getEnv("API_PORT", "8080"),
		APIHost:              getEnv("API_HOST", "localhost"),
		JobTransitionLatency: getDuration("JOB_TRANSITION_LATENCY", 2*time.Second),
		MessageLockDuration:  getDuration("MESSAGE_LOCK_DURATION", 30*time.Second),
		Endpoint:             getEnv("NIMBUS_ENDPOINT", "http://localhost:8080"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration returns a duration environment variable or a default value
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AccessKeyID == "" {
		return &ConfigError{Field: "NIMBUS_ACCESS_KEY_ID", Message: "access key ID is required"}
	}
	if c.AccessKeySecret == "" {
		return &ConfigError{Field: "NIMBUS_ACCESS_KEY_SECRET", Message: "access key secret is required"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.JobTransitionLatency < 0 {
		return &ConfigError{Field: "JOB_TRANSITION_LATENCY", Message: "must not be negative"}
	}
	if c.MessageLockDuration <= 0 {
		return &ConfigError{Field: "MESSAGE_LOCK_DURATION", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
