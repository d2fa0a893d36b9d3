package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 30, cfg.Reconciliation.Thresholds().ExcessiveMinutes)
	assert.Equal(t, 0, cfg.Reconciliation.Thresholds().LowMinutes)
	assert.Equal(t, "59 23 * * *", cfg.Scheduler.AutoCloseCron)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	// GIVEN: A file selecting postgres and redis, and an env override for the port
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: postgres
  postgres_url: postgres://worktime@localhost:5432/worktime
redis:
  enabled: true
  addr: redis:6379
  lock_ttl: 10s
reconciliation:
  excessive_threshold_minutes: 45
  low_threshold_minutes: 15
`)
	t.Setenv("WORKTIME_SERVER_PORT", "9100")

	// WHEN: Loading
	cfg, err := config.Load(path)

	// THEN: The environment wins over the file, the file over defaults
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 45, cfg.Reconciliation.ExcessiveThresholdMinutes)
	assert.Equal(t, 15, cfg.Reconciliation.LowThresholdMinutes)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown driver":        "database:\n  driver: oracle\n",
		"postgres without url":  "database:\n  driver: postgres\n",
		"bad port":              "server:\n  port: 70000\n",
		"bad cron":              "scheduler:\n  auto_close_cron: every night\n",
		"negative threshold":    "reconciliation:\n  excessive_threshold_minutes: -5\n",
		"unknown log format":    "log:\n  format: xml\n",
		"redis without address": "redis:\n  enabled: true\n  addr: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
