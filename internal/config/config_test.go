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
	t.Setenv(EnvLogRoot, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvDebug, "")
	home := t.TempDir()

	cfg, err := LoadFrom(filepath.Join(home, "missing.toml"), home)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".lmstudio", "server-logs"), cfg.LogRoot)
	assert.Equal(t, filepath.Join(home, ".lms-log-explorer", "index.sqlite"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 250, cfg.YieldEvery)
	assert.Equal(t, 2*time.Second, cfg.WatchDebounce.Duration)
}

func TestLoadFileAndEnv(t *testing.T) {
	home := t.TempDir()
	cfgPath := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log_root = "~/logs"
db_path = "~/db/index.sqlite"
yield_every = 50
watch_debounce = "500ms"
`), 0o644))

	t.Setenv(EnvLogRoot, "")
	t.Setenv(EnvDBPath, "/tmp/override.sqlite")
	t.Setenv(EnvDebug, "true")

	cfg, err := LoadFrom(cfgPath, home)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), cfg.LogRoot)
	assert.Equal(t, "/tmp/override.sqlite", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.YieldEvery)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce.Duration)
}

func TestLoadInvalidFile(t *testing.T) {
	home := t.TempDir()
	cfgPath := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log_root = ["), 0o644))

	_, err := LoadFrom(cfgPath, home)
	assert.Error(t, err)
}
