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

	assert.Equal(t, "geo_cache.csv", cfg.Cache.File)
	assert.Equal(t, "", cfg.Cache.AltAddrFile)
	assert.Equal(t, 7, cfg.Cache.RetryDays)
	assert.Equal(t, 100, cfg.Cache.SaveEvery)
	assert.False(t, cfg.Cache.AlwaysGeocode)
	assert.False(t, cfg.Cache.CacheOnly)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Geocode.BaseURL)
	assert.Equal(t, "gedmap-cli", cfg.Geocode.UserAgent)
	assert.Equal(t, 1000, cfg.Geocode.IntervalMS)
	assert.Equal(t, 10, cfg.Geocode.TimeoutSecs)
	assert.Equal(t, 3, cfg.Geocode.MaxRetries)
	assert.Equal(t, 90, cfg.Geo.FuzzyThreshold)
	assert.Equal(t, "gedmap.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
cache:
  file: places.csv
  retry_days: 30
  always_geocode: true
geo:
  default_country: Canada
  fuzzy: true
log:
  level: debug
  format: json
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "places.csv", cfg.Cache.File)
	assert.Equal(t, 30, cfg.Cache.RetryDays)
	assert.True(t, cfg.Cache.AlwaysGeocode)
	assert.Equal(t, "Canada", cfg.Geo.DefaultCountry)
	assert.True(t, cfg.Geo.Fuzzy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Geocode.IntervalMS)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
cache:
  file: places.csv
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GEDMAP_CACHE_FILE", "env_cache.csv")
	t.Setenv("GEDMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "env_cache.csv", cfg.Cache.File)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("GEDMAP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
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

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Cache.File = "geo_cache.csv"
	cfg.Cache.RetryDays = 7
	cfg.Cache.SaveEvery = 100
	cfg.Geocode.BaseURL = "https://nominatim.openstreetmap.org"
	cfg.Geocode.UserAgent = "gedmap-cli"
	cfg.Geocode.IntervalMS = 1000
	cfg.Geocode.MaxRetries = 3
	cfg.Geo.FuzzyThreshold = 90
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateResolve_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateResolve_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.File = ""
	cfg.Geocode.BaseURL = ""
	cfg.Geocode.UserAgent = ""

	err := cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.file is required")
	assert.Contains(t, err.Error(), "geocode.base_url is required")
	assert.Contains(t, err.Error(), "geocode.user_agent is required")
}

func TestValidateResolve_CacheOnlySkipsProviderChecks(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.CacheOnly = true
	cfg.Geocode.BaseURL = ""
	cfg.Geocode.UserAgent = ""

	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Cache.RetryDays = -1
	err := cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.retry_days")

	cfg.Cache.RetryDays = 7
	cfg.Geo.FuzzyThreshold = 101
	err = cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "geo.fuzzy_threshold")

	cfg.Geo.FuzzyThreshold = 90
	cfg.Geocode.MaxRetries = 0
	err = cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.max_retries")

	cfg.Geocode.MaxRetries = 3
	assert.NoError(t, cfg.Validate("resolve"))
}
