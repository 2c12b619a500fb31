// Package config loads the engine configuration from .kalk/kalk.yaml.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	domainPlugin "github.com/felixgeelhaar/kalk/pkg/domain/plugin"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/kalk/pkg/storage"
	"gopkg.in/yaml.v3"
)

const (
	StorageFilesystem = "filesystem"
	StorageSQLite     = "sqlite"
)

// DefaultDebounce is the quiet period between the last invalidation of a
// project and its recompute.
const DefaultDebounce = 800 * time.Millisecond

// WatchConfig filters which workspace files trigger an invalidation.
type WatchConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// NotifyConfig lists where deviation alerts are posted.
type NotifyConfig struct {
	Webhooks []webhook.Endpoint `yaml:"webhooks,omitempty"`
}

// Config is the engine configuration. Calculation parameters are not part of
// it; they live in parameters.yaml and are edited through the parameters service.
type Config struct {
	Storage      string                     `yaml:"storage"`
	SQLitePath   string                     `yaml:"sqlite_path,omitempty"`
	Debounce     time.Duration              `yaml:"debounce"`
	LogLevel     string                     `yaml:"log_level"`
	SourcePlugin *domainPlugin.PluginConfig `yaml:"source_plugin,omitempty"`
	Watch        WatchConfig                `yaml:"watch,omitempty"`
	Notify       NotifyConfig               `yaml:"notify,omitempty"`
}

func Default() *Config {
	return &Config{
		Storage:  StorageFilesystem,
		Debounce: DefaultDebounce,
		LogLevel: "info",
		Watch: WatchConfig{
			Include: []string{"*.yaml"},
			Exclude: []string{".*", "*.tmp-*", "kalk.yaml"},
		},
	}
}

// Load reads kalk.yaml below root. A missing file yields the defaults.
func Load(root string) (*Config, error) {
	repo := storage.NewFilesystemRepository(root)
	path, err := repo.ResolvePath(storage.ConfigFile)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 -- Path is resolved and validated via ResolvePath
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(root string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	repo := storage.NewFilesystemRepository(root)
	path, err := repo.ResolvePath(storage.ConfigFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFilesystem:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("storage %q requires sqlite_path", c.Storage)
		}
	default:
		return fmt.Errorf("unknown storage %q (use %s or %s)", c.Storage, StorageFilesystem, StorageSQLite)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for i, ep := range c.Notify.Webhooks {
		if ep.URL == "" {
			return fmt.Errorf("notify.webhooks[%d]: url is required", i)
		}
	}
	return c.SourcePlugin.Validate()
}

// ParseLevel maps a config log level to slog. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}
