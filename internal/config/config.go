// Package config loads the settlement engine's process configuration
// from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	DatabaseURL string
	SQLitePath  string
	LogLevel    string

	RetryInterval time.Duration
	ReconInterval time.Duration

	SFTPTimeout  time.Duration
	SFTPPoolSize int
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: os.Getenv("APP_ENV"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	var err error
	if cfg.RetryInterval, err = durationEnv("WORKER_RETRY_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconInterval, err = durationEnv("WORKER_RECON_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SFTPTimeout, err = durationEnv("SFTP_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SFTPPoolSize, err = intEnv("SFTP_POOL_SIZE", 2); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		missing = append(missing, "DATABASE_URL or SQLITE_PATH")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	// SQLite is a single-writer development convenience, not a
	// production store.
	if c.Environment == "production" || c.Environment == "staging" {
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required in " + c.Environment)
		}
	}

	if c.SFTPPoolSize < 1 {
		return errors.New("SFTP_POOL_SIZE must be at least 1")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog's levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
