package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the temp dir.
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "learning.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Extract.FastMode)
	assert.InDelta(t, 0.9, cfg.Extract.FastModeThreshold, 0.001)
	assert.Equal(t, 4, cfg.Extract.MaxConcurrentFields)
	assert.Equal(t, 1000, cfg.Learning.HistoryLimit)
	assert.InDelta(t, 0.7, cfg.Learning.SimilarityThreshold, 0.001)
	assert.InDelta(t, 0.7, cfg.Learning.LocationConfidence, 0.001)
	assert.InDelta(t, 0.5, cfg.Learning.SuccessConfidence, 0.001)
	assert.Equal(t, 3, cfg.Learning.SaveAttempts)
	assert.False(t, cfg.Filter.FailClosed)
	assert.Equal(t, []string{"name", "address", "phone", "levelsOfCare", "insurance"}, cfg.Filter.RequiredFields)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSecs)
	assert.InDelta(t, 2, cfg.Fetch.RequestsPerSecond, 0.001)
	assert.Equal(t, 4, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, "https://r.jina.ai", cfg.Fetch.JinaBaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/extract
log:
  level: debug
  format: console
extract:
  fast_mode: true
  strategies: [structured-data, pattern-matching]
filter:
  fail_closed: true
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/extract", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Extract.FastMode)
	assert.Equal(t, []string{"structured-data", "pattern-matching"}, cfg.Extract.Strategies)
	assert.True(t, cfg.Filter.FailClosed)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Learning.HistoryLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("EXTRACT_STORE_DRIVER", "memory")
	t.Setenv("EXTRACT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EXTRACT_SERVER_PORT", "3000")
	t.Setenv("EXTRACT_LEARNING_SIMILARITY_THRESHOLD", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 0.8, cfg.Learning.SimilarityThreshold, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Extract.FastModeThreshold = 0.9
	cfg.Extract.MaxConcurrentFields = 4
	cfg.Learning.HistoryLimit = 1000
	cfg.Learning.SimilarityThreshold = 0.7
	cfg.Learning.LocationConfidence = 0.7
	cfg.Learning.SuccessConfidence = 0.5
	cfg.Fetch.MaxConcurrent = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	for _, mode := range []string{"extract", "batch", "serve", "feedback", "query"} {
		assert.NoError(t, validDefaults().Validate(mode), mode)
	}
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/extract"
	assert.NoError(t, cfg.Validate("query"))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "redis"
	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be")
}

func TestValidate_AIEnhanceNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.AIEnhance = true

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.NoError(t, cfg.Validate("feedback"), "feedback never calls the model")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidate_BatchConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Fetch.MaxConcurrent = 0
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.max_concurrent must be between 1 and 50")

	cfg.Fetch.MaxConcurrent = 51
	assert.Error(t, cfg.Validate("batch"))

	cfg.Fetch.MaxConcurrent = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Learning.SimilarityThreshold = 1.5
	cfg.Extract.FastModeThreshold = -0.1

	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning.similarity_threshold must be between 0 and 1")
	assert.Contains(t, err.Error(), "extract.fast_mode_threshold must be between 0 and 1")
}

func TestValidate_HistoryLimit(t *testing.T) {
	cfg := validDefaults()
	cfg.Learning.HistoryLimit = 0
	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning.history_limit must be > 0")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
