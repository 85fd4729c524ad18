package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	fast := cfg.TierConfig(types.TierFast)
	assert.Equal(t, 1000, fast.MaxEntries)
	assert.EqualValues(t, 50*1024*1024, fast.MaxSizeBytes)
	assert.Equal(t, 5*time.Minute, fast.DefaultTTL)
	assert.Equal(t, time.Second, fast.OpTimeout)

	medium := cfg.TierConfig(types.TierMedium)
	assert.Equal(t, 5000, medium.MaxEntries)
	assert.EqualValues(t, 5*1024*1024, medium.MaxSizeBytes)
	assert.Equal(t, "mtier_", medium.KeyPrefix)

	slow := cfg.TierConfig(types.TierSlow)
	assert.Equal(t, 50000, slow.MaxEntries)
	assert.Equal(t, 7*24*time.Hour, slow.DefaultTTL)
	assert.Equal(t, eviction.DampedLRU, slow.EvictionPolicy)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "cache.toml", `
[fast]
max_entries = 250
default_ttl = "90s"

[medium]
eviction_policy = "lfu"

[storage]
backend = "memory"

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Fast.MaxEntries)
	assert.Equal(t, 90*time.Second, cfg.Fast.DefaultTTL.Std())
	assert.EqualValues(t, 50*1024*1024, cfg.Fast.MaxSizeBytes, "unset fields keep defaults")
	assert.Equal(t, "lfu", cfg.Medium.EvictionPolicy)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "cache.yaml", `
slow:
  max_size_bytes: 1048576
  cleanup_interval: 30m
storage:
  dir: /var/cache/portfolio
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1048576, cfg.Slow.MaxSizeBytes)
	assert.Equal(t, 30*time.Minute, cfg.Slow.CleanupInterval.Std())
	assert.Equal(t, "/var/cache/portfolio", cfg.Storage.Dir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown format", "cache.ini", "x=1"},
		{"bad toml", "cache.toml", "[fast\n"},
		{"bad policy", "cache.toml", "[fast]\neviction_policy = \"random\"\n"},
		{"bad duration", "cache.yaml", "fast:\n  default_ttl: soon\n"},
		{"shared prefix", "cache.toml", "[medium]\nkey_prefix = \"x_\"\n[slow]\nkey_prefix = \"x_\"\n"},
		{"bad log level", "cache.toml", "[log]\nlevel = \"loud\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "TIERCACHE_FAST_MAX_ENTRIES=10\nTIERCACHE_SLOW_DEFAULT_TTL=48h\n")
	t.Setenv("TIERCACHE_FAST_MAX_ENTRIES", "20")
	t.Setenv("TIERCACHE_MEDIUM_KEY_PREFIX", "med_")
	t.Setenv("TIERCACHE_LOG_LEVEL", "warn")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envFile))

	assert.Equal(t, 20, cfg.Fast.MaxEntries, "process environment wins over the env file")
	assert.Equal(t, 48*time.Hour, cfg.Slow.DefaultTTL.Std())
	assert.Equal(t, "med_", cfg.Medium.KeyPrefix)
	assert.Equal(t, "warn", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_MissingFileIsFine(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestApplyVars_Invalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyVars(map[string]string{"TIERCACHE_FAST_DEFAULT_TTL": "tomorrow"})
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	assert.NotNil(t, cfg.Logger(os.Stderr))
}
