package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mevdschee/tqreload/pkg/watcher"
)

// Strategies for detecting changed units.
const (
	StrategyWatch = "watch"
	StrategyPoll  = "poll"
)

// PathSettings is one watched root
type PathSettings struct {
	Path      string `yaml:"path"`
	Recursive bool   `yaml:"recursive"`
}

// Config represents the reloader configuration
type Config struct {
	Reloading struct {
		Paths         []PathSettings `yaml:"paths"`
		Strategy      string         `yaml:"strategy"`
		IncludeRemove bool           `yaml:"include_remove"`
		Ignore        []string       `yaml:"ignore"`
		DebounceMs    int            `yaml:"debounce_ms"`
	} `yaml:"reload"`

	Wrap struct {
		BackoffMs int `yaml:"backoff_ms"`
	} `yaml:"wrap"`

	Scanner struct {
		TimeoutMs  int `yaml:"timeout_ms"`
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"scanner"`

	Log struct {
		File string `yaml:"file"`
	} `yaml:"log"`

	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Reloading.Strategy = StrategyWatch
	config.Reloading.IncludeRemove = false
	config.Reloading.Ignore = append([]string(nil), watcher.DefaultIgnore...)
	config.Reloading.DebounceMs = 0
	config.Wrap.BackoffMs = 100
	config.Scanner.TimeoutMs = 2000
	config.Scanner.IntervalMs = 100
	config.Log.File = ""       // empty = stderr
	config.Metrics.Listen = "" // empty = disabled
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// Reload reloads the configuration from the same file path
func (c *Config) Reload(configPath string) error {
	newConfig, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	*c = *newConfig
	return nil
}

// Validate checks the strategy and requires every watched path to be
// absolute.
func (c *Config) Validate() error {
	switch c.Reloading.Strategy {
	case StrategyWatch, StrategyPoll:
	default:
		return fmt.Errorf("unknown reload strategy %q", c.Reloading.Strategy)
	}
	for _, p := range c.Reloading.Paths {
		if !filepath.IsAbs(p.Path) {
			return &watcher.PathError{Path: p.Path}
		}
	}
	return nil
}

// Roots returns the watched paths as watcher roots
func (c *Config) Roots() []watcher.Root {
	roots := make([]watcher.Root, 0, len(c.Reloading.Paths))
	for _, p := range c.Reloading.Paths {
		roots = append(roots, watcher.Root{Path: p.Path, Recursive: p.Recursive})
	}
	return roots
}

// WatchOptions returns the watcher options
func (c *Config) WatchOptions() watcher.Options {
	return watcher.Options{
		IncludeRemove: c.Reloading.IncludeRemove,
		Ignore:        c.Reloading.Ignore,
		Debounce:      c.GetDebounceDelay(),
	}
}

// GetBackoff returns the wrapper backoff as a time.Duration
func (c *Config) GetBackoff() time.Duration {
	return time.Duration(c.Wrap.BackoffMs) * time.Millisecond
}

// GetScanTimeout returns the scan worker idle timeout as a time.Duration
func (c *Config) GetScanTimeout() time.Duration {
	return time.Duration(c.Scanner.TimeoutMs) * time.Millisecond
}

// GetScanInterval returns the pause between polls as a time.Duration
func (c *Config) GetScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalMs) * time.Millisecond
}

// GetDebounceDelay returns the debounce delay as a time.Duration
func (c *Config) GetDebounceDelay() time.Duration {
	return time.Duration(c.Reloading.DebounceMs) * time.Millisecond
}
