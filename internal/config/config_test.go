package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/merge"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openalex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "https://api.openalex.org", cfg.URL)
	assert.Equal(t, 10, cfg.MaxConcurrent)
	assert.Equal(t, 100, cfg.CLIBatchSize)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
email: me@example.org
max_retries: 5
retry_backoff: 0.25
rate_limit: 5
max_concurrent: 4
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "me@example.org", cfg.Email)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 0.25, cfg.RetryBackoff)
	assert.Equal(t, 5.0, cfg.RateLimit)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30.0, cfg.TotalTimeout)
	assert.Equal(t, 20, cfg.ConnectionLimit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "max_concurrent: 4\nemail: file@example.org\n")
	t.Setenv("OPENALEX_MAX_CONCURRENT", "7")
	t.Setenv("OPENALEX_API_KEY", "secret")
	t.Setenv("OPENALEX_CONNECTION_LIMIT_PER_HOST", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxConcurrent)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 3, cfg.ConnectionLimitPerHost)
	assert.Equal(t, "file@example.org", cfg.Email)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENALEX_EMAIL", "env@example.org")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env@example.org", cfg.Email)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ftp://example.org"
	cfg.Email = "nobody"
	cfg.RateBuffer = 1.5
	cfg.ConnectTimeout = 60
	cfg.CLIBatchSize = 500
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{"url", "email", "rate_buffer", "connect_timeout", "cli_batch_size", "log_level"}, fields)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestClientConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Email = "me@example.org"
	cfg.RetryBackoff = 0.25
	cfg.ConnectionLimit = 30
	cfg.ConnectionLimitPerHost = 5

	cc := cfg.ClientConfig()
	assert.Equal(t, "me@example.org", cc.Email)
	assert.Equal(t, 250*time.Millisecond, cc.Retry.BackoffBase)
	assert.Equal(t, 30*time.Second, cc.Retry.MaxBackoff)
	assert.Equal(t, 30*time.Second, cc.TotalTimeout)
	assert.Equal(t, 10*time.Second, cc.ConnectTimeout)
	assert.Equal(t, 30, cc.MaxConnections)
	assert.Equal(t, 5, cc.MaxKeepalive)
	assert.Equal(t, 10.0, cc.RateLimit.RequestsPerSecond)
	assert.Empty(t, cc.RedisAddr)

	cfg.RedisAddr = "localhost:6379"
	cc = cfg.ClientConfig()
	assert.Equal(t, "localhost:6379", cc.RedisAddr)
	assert.Nil(t, cc.Redis, "the client is created and owned by client.New")
}

func TestOpenAlexConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 3
	cfg.CLIBatchSize = 50

	oc := cfg.OpenAlexConfig(merge.BestEffort)
	assert.Equal(t, 3, oc.MaxConcurrent)
	assert.Equal(t, 50, oc.BatchSize)
	assert.Equal(t, merge.BestEffort, oc.Policy)
}

func TestLoggingConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	cfg.LogPretty = true

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.True(t, lc.Pretty)
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyOverrides("", "", "", 0)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg.ApplyOverrides("cli@example.org", "key", "debug", 2)
	assert.Equal(t, "cli@example.org", cfg.Email)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxConcurrent)
}
