package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SQLITE_PATH", "settlement.db")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WORKER_RETRY_INTERVAL", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "settlement.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)
	assert.Equal(t, 5*time.Minute, cfg.ReconInterval)
	assert.Equal(t, 2, cfg.SFTPPoolSize)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadMissingEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV")
	assert.Contains(t, err.Error(), "DATABASE_URL or SQLITE_PATH")
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SQLITE_PATH", "settlement.db")
	t.Setenv("WORKER_RECON_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_RECON_INTERVAL")
}

func TestProductionRequiresPostgres(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "settlement.db")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}
