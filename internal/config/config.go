package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvLogRoot = "LMS_LOG_ROOT"
	EnvDBPath  = "LMS_INDEX_DB_PATH"
	EnvDebug   = "DEBUG"
)

type Config struct {
	LogRoot       string   `toml:"log_root"`
	DBPath        string   `toml:"db_path"`
	LogLevel      string   `toml:"log_level"`
	YieldEvery    int      `toml:"yield_every"`
	WatchDebounce Duration `toml:"watch_debounce"`
}

// Duration decodes TOML strings such as "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default(home string) *Config {
	return &Config{
		LogRoot:       filepath.Join(home, ".lmstudio", "server-logs"),
		DBPath:        filepath.Join(home, ".lms-log-explorer", "index.sqlite"),
		LogLevel:      "info",
		YieldEvery:    250,
		WatchDebounce: Duration{2 * time.Second},
	}
}

// Path returns the config file location.
func Path(home string) string {
	return filepath.Join(home, ".config", "lmx", "config.toml")
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(Path(home), home)
}

// LoadFrom reads cfgPath if it exists, then applies environment overrides.
func LoadFrom(cfgPath, home string) (*Config, error) {
	cfg := Default(home)

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	if v := os.Getenv(EnvLogRoot); v != "" {
		cfg.LogRoot = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if on, err := strconv.ParseBool(v); err == nil && on {
			cfg.LogLevel = "debug"
		}
	}

	// expand ~ in paths
	cfg.LogRoot = expandHome(cfg.LogRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)

	if cfg.YieldEvery <= 0 {
		cfg.YieldEvery = 250
	}
	if cfg.WatchDebounce.Duration <= 0 {
		cfg.WatchDebounce.Duration = 2 * time.Second
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
