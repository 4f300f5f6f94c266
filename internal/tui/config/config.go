// ABOUTME: Watcher configuration with XDG-compliant file loading
// ABOUTME: Handles config loading, validation, defaults, and theme selection
package config

import (
	"os"
	"path/filepath"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/xdg"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
}

type FeedConfig struct {
	URL               string `yaml:"url"`
	ReconnectAttempts int    `yaml:"reconnect_attempts"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

type UIConfig struct {
	Theme                 string `yaml:"theme"`
	SidebarWidth          int    `yaml:"sidebar_width"`
	SidebarDefaultVisible bool   `yaml:"sidebar_default_visible"`
	HistoryLimit          int    `yaml:"history_limit"`
	ShowCompleted         bool   `yaml:"show_completed"`
}

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:               "ws://127.0.0.1:8091/ws/progress",
			ReconnectAttempts: 5,
			TimeoutSeconds:    30,
		},
		UI: UIConfig{
			Theme:                 "default",
			SidebarWidth:          25,
			SidebarDefaultVisible: true,
			HistoryLimit:          500,
			ShowCompleted:         true,
		},
		Logging: LoggingConfig{
			Enabled: false,
			File:    "$XDG_DATA_HOME/codeql-relay/watch.log",
		},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome(), "watch.yaml")
}

// Load reads the watcher config, writing a default file on first run.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// A read-only config dir still gets defaults.
		_ = saveDefault(cfg, configPath)
		cfg.Validate()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg.Validate()
	return cfg, nil
}

func (c *Config) Validate() {
	if c.UI.SidebarWidth < 20 {
		c.UI.SidebarWidth = 20
	}
	if c.UI.SidebarWidth > 40 {
		c.UI.SidebarWidth = 40
	}

	if c.UI.HistoryLimit < 50 {
		c.UI.HistoryLimit = 50
	}
	if c.UI.HistoryLimit > 10000 {
		c.UI.HistoryLimit = 10000
	}

	if c.Feed.ReconnectAttempts < 0 {
		c.Feed.ReconnectAttempts = 0
	}
	if c.Feed.ReconnectAttempts > 10 {
		c.Feed.ReconnectAttempts = 10
	}

	if c.Feed.TimeoutSeconds < 5 {
		c.Feed.TimeoutSeconds = 5
	}
	if c.Feed.TimeoutSeconds > 300 {
		c.Feed.TimeoutSeconds = 300
	}

	c.Logging.File = xdg.ExpandPath(c.Logging.File)
}

func saveDefault(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
