package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "siteselect.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 15, cfg.Search.MaxAIResults)
	assert.Equal(t, 10, cfg.Search.AICandidates)
	assert.Equal(t, 30, cfg.Auth.AccessTTLMinutes)
	assert.Equal(t, 7, cfg.Auth.RefreshTTLDays)
	assert.Equal(t, 60, cfg.Auth.ResetTTLMinutes)
	assert.Equal(t, "https://api.census.gov/data", cfg.Census.BaseURL)
	assert.InDelta(t, 5.0, cfg.Census.RateLimit, 0.001)
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/siteselect
log:
  level: debug
  format: console
server:
  port: 9090
search:
  max_results: 5
google:
  client_id: abc
  client_secret: xyz
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.True(t, cfg.GoogleEnabled())
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Search.MaxAIResults)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SITESELECT_STORE_DRIVER", "postgres")
	t.Setenv("SITESELECT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SITESELECT_SERVER_PORT", "3000")
	t.Setenv("SITESELECT_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "test.db"
	cfg.Server.Port = 8000
	cfg.Auth.JWTSecret = "secret"
	cfg.Search.MaxResults = 20
	cfg.Search.MaxAIResults = 15
	cfg.Search.AICandidates = 10
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.JWTSecret = ""
	cfg.Store.DatabaseURL = ""
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStore_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateCLI_IgnoresStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Auth.JWTSecret = ""

	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateSearchCaps(t *testing.T) {
	cfg := validDefaults()
	cfg.Search.MaxAIResults = 0

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.max_results")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
