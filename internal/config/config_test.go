package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "feelflow.yaml", `
typing_delay: 250ms
auto_create_after_farewell: true
seed: 7
log:
  level: debug
store:
  backend: redis
  redis:
    addr: redis:6379
    ttl: 1h
http:
  port: 9090
`)

	cfg, err := load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.TypingDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.CreateDebounce, "unset keys keep defaults")
	assert.True(t, cfg.AutoCreateAfterFarewell)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, "feelflow:session:", cfg.Store.Redis.Prefix)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "feelflow.json", `{"typing_delay": "0s", "metrics": {"enabled": false}}`)

	cfg, err := load(path, nil)
	require.NoError(t, err)
	assert.Zero(t, cfg.TypingDelay)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "feelflow.yaml", "store:\n  backend: memory\nlog:\n  level: warn\n")

	cfg, err := load(path, []string{
		"FEELFLOW_STORE_BACKEND=redis",
		"FEELFLOW_STORE_REDIS_DB=3",
		"FEELFLOW_LOG_LEVEL=error",
		"FEELFLOW_CREATE_DEBOUNCE=1s",
		"FEELFLOW_SEED=99",
		"FEELFLOW_METRICS_ENABLED=false",
		"FEELFLOW_INPUT_MAX_SIZE=512",
		"PATH=/usr/bin",
	})
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.CreateDebounce)
	assert.Equal(t, uint64(99), cfg.Seed)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 512, cfg.Input.MaxSize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"Backend":  "store:\n  backend: sqlite\n",
		"Delay":    "typing_delay: -1s\n",
		"Port":     "http:\n  port: 70000\n",
		"Duration": "typing_delay: soon\n",
		"Syntax":   "log: [\n",
		"MaxSize":  "input:\n  max_size: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(writeFile(t, "feelflow.yaml", content), nil)
			assert.Error(t, err)
		})
	}
}

func TestEnvPath(t *testing.T) {
	assert.Equal(t, []string{"store", "redis", "addr"}, envPath("STORE_REDIS_ADDR"))
	assert.Equal(t, []string{"store", "backend"}, envPath("STORE_BACKEND"))
	assert.Equal(t, []string{"input", "max_size"}, envPath("INPUT_MAX_SIZE"))
	assert.Equal(t, []string{"typing_delay"}, envPath("TYPING_DELAY"))
	assert.Equal(t, []string{"auto_create_after_farewell"}, envPath("AUTO_CREATE_AFTER_FAREWELL"))
}

func TestLoad_StoreProtection(t *testing.T) {
	path := writeFile(t, "feelflow.yaml", `store:
  redact: true
  redact_patterns:
    - '\d{4}-\d{4}'
  fallback_keys: [old]
`)

	cfg, err := load(path, []string{
		"FEELFLOW_STORE_ENCRYPTION_KEY=active",
		"FEELFLOW_STORE_FALLBACK_KEYS=k1,k2",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Store.Redact)
	assert.Equal(t, []string{`\d{4}-\d{4}`}, cfg.Store.RedactPatterns)
	assert.Equal(t, "active", cfg.Store.EncryptionKey)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Store.FallbackKeys)
}
