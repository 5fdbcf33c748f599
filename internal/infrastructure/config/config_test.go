package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromFile("nonexistent.yaml")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 50, cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.True(t, cfg.Injection.Probabilistic)
	assert.Equal(t, 1.0, cfg.Injection.RateMultiplier)
	assert.Equal(t, 30*time.Second, cfg.Injection.Cooldown)
	assert.Equal(t, 10, cfg.Behavioral.MinInteractions)
	assert.Equal(t, 0.7, cfg.Behavioral.AnomalyThreshold)
	assert.Equal(t, "expert", cfg.Validation.MaxLevel)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
llm:
  default_model: gpt-4o
injection:
  probabilistic: false
  rate_multiplier: 2.5
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.DefaultModel)
	assert.False(t, cfg.Injection.Probabilistic)
	assert.Equal(t, 2.5, cfg.Injection.RateMultiplier)
	// Untouched keys keep their defaults.
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TESTBED_SERVER__PORT", "7070")
	t.Setenv("TESTBED_LLM__API_KEY", "sk-test")
	t.Setenv("TESTBED_LLM__DEFAULT_MODEL", "gpt-4.1-mini")
	t.Setenv("TESTBED_LOG_LEVEL", "debug")

	cfg, err := LoadFromFile("nonexistent.yaml")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("TESTBED_SERVER__PORT", "7070")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Run("port", func(t *testing.T) {
		t.Setenv("TESTBED_SERVER__PORT", "-1")
		_, err := LoadFromFile("nonexistent.yaml")
		assert.Error(t, err)
	})

	t.Run("rate multiplier", func(t *testing.T) {
		t.Setenv("TESTBED_INJECTION__RATE_MULTIPLIER", "-0.5")
		_, err := LoadFromFile("nonexistent.yaml")
		assert.Error(t, err)
	})

	t.Run("min interactions", func(t *testing.T) {
		t.Setenv("TESTBED_BEHAVIORAL__MIN_INTERACTIONS", "0")
		_, err := LoadFromFile("nonexistent.yaml")
		assert.Error(t, err)
	})
}
