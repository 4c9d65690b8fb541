package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: tripline
  environment: test
database:
  path: /tmp/tripline-test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tripline", cfg.App.Name)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 90, cfg.Locks.TTLSeconds)
	assert.Equal(t, 5, cfg.API.RateLimit.Burst)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TRIPLINE_DB_PATH", "/tmp/expanded.db")
	path := writeConfig(t, `
database:
  path: ${TRIPLINE_DB_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.Database.Path)
}

func TestValidateRequiresDatabasePath(t *testing.T) {
	path := writeConfig(t, `
app:
  name: tripline
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "database path is required")
}

func TestValidateAuthNeedsKeys(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/t.db
api:
  auth:
    enabled: true
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "no api keys")
}

func TestValidateRedisNeedsAddress(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/t.db
redis:
  enabled: true
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "redis enabled")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
