// Package config handles bazaar configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for bazaar.
type Config struct {
	// API settings
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Poll settings
	Poll PollConfig `yaml:"poll" mapstructure:"poll"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// APIConfig contains marketplace API settings.
type APIConfig struct {
	// BaseURL is the API root, including the /api prefix.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds each request. Zero leaves the transport default.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PollConfig contains refresh intervals for the two independent loops.
type PollConfig struct {
	// InboxInterval is how often the conversation list refreshes.
	InboxInterval time.Duration `yaml:"inbox_interval" mapstructure:"inbox_interval"`

	// ThreadInterval is how often an open chat thread refreshes.
	ThreadInterval time.Duration `yaml:"thread_interval" mapstructure:"thread_interval"`
}

// StorageConfig selects where favorites and the session persist.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend" mapstructure:"backend"`

	// DataDir is the directory holding local state.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// MetricsConfig controls the Prometheus endpoint of long-running commands.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9464". Empty disables it.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 30 * time.Second,
		},
		Poll: PollConfig{
			InboxInterval:  10 * time.Second,
			ThreadInterval: 5 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			DataDir: filepath.Join(homeDir, ".local", "share", "bazaar"),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	if c.Poll.InboxInterval < time.Second {
		return fmt.Errorf("poll.inbox_interval must be at least 1s")
	}
	if c.Poll.ThreadInterval < time.Second {
		return fmt.Errorf("poll.thread_interval must be at least 1s")
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be one of file, sqlite")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.DataDir, err)
	}
	return nil
}

// StatePath returns the storage file for the configured backend.
func (c *Config) StatePath() string {
	if c.Storage.Backend == BackendSQLite {
		return filepath.Join(c.Storage.DataDir, "bazaar.db")
	}
	return filepath.Join(c.Storage.DataDir, "state.json")
}
