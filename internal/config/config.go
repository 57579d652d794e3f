package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cutty/internal/logging"
	"cutty/internal/repository"
	"cutty/pkg/fileops"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const APP_NAME = "cutty" // application name used for config and cache directories

// ConfigPathEnv overrides the location of the config file.
const ConfigPathEnv = "CUTTY_CONFIG_PATH"

// DefaultCacheMaxAge is how long unused cache entries are kept by default.
const DefaultCacheMaxAge = 30 * 24 * time.Hour

// Config holds user configuration for cutty.
type Config struct {
	// CacheDir is where fetched templates are stored.
	CacheDir string `yaml:"cache_dir"`
	// FetchMode is one of always, auto or never.
	FetchMode string `yaml:"fetch_mode"`
	// CacheMaxAge is the age after which "cache clean" removes entries.
	CacheMaxAge Duration `yaml:"cache_max_age"`
	// Providers restricts and orders the template providers. Empty means all.
	Providers []string `yaml:"providers,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ConfigPath returns the config file path for the current platform.
func ConfigPath() string {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return path
	}
	configPath := filepath.Join(xdg.ConfigHome, APP_NAME, "config.yaml")

	logging.Debug("Determined config path", "path", configPath)
	return configPath
}

// DefaultCacheDir returns the platform cache directory for cutty.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, APP_NAME)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheDir:    DefaultCacheDir(),
		FetchMode:   repository.FetchAlways.String(),
		CacheMaxAge: Duration(DefaultCacheMaxAge),
	}
}

// Load loads the config from the standard location. A missing file yields
// the defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from a specific path, filling unset fields with
// defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("No config file, using defaults", "path", path)
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	logging.Debug("Decoding config file", "path", path)
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills empty fields with defaults and validates the rest.
func (c *Config) normalize() error {
	defaults := DefaultConfig()
	if c.CacheDir == "" {
		c.CacheDir = defaults.CacheDir
	}
	c.CacheDir = fileops.ExpandPath(c.CacheDir)
	if c.FetchMode == "" {
		c.FetchMode = defaults.FetchMode
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = defaults.CacheMaxAge
	}
	return nil
}

// Mode returns the parsed fetch mode.
func (c *Config) Mode() (repository.FetchMode, error) {
	mode, err := repository.ParseFetchMode(c.FetchMode)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch_mode in config: %w", err)
	}
	return mode, nil
}

// Save writes the config to the standard location.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the config to a specific path.
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create file with restrictive permissions (600) for security
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logging.Debug("Configuration saved", "path", path)
	return nil
}
