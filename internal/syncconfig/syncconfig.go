// Package syncconfig loads the global nhatky configuration from
// ~/.config/nhatky/config.yaml with NHATKY_* environment overrides.
package syncconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus/nhatky/internal/db"
)

// Defaults for unset or invalid values.
const (
	DefaultAPIURL        = "http://localhost:3000"
	DefaultInterval      = 60 * time.Second
	DefaultProbeInterval = 15 * time.Second
	DefaultMaxDelay      = time.Hour
)

// RetryConfig configures how failed queue items are retried.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"` // 0 = unlimited
	BaseDelay   string `yaml:"base_delay,omitempty"`   // empty = retry every pass
	MaxDelay    string `yaml:"max_delay,omitempty"`    // default "1h"
}

// SyncConfig holds background sync settings.
type SyncConfig struct {
	Interval      string      `yaml:"interval,omitempty"`       // default "60s"
	ProbeInterval string      `yaml:"probe_interval,omitempty"` // default "15s"
	Retry         RetryConfig `yaml:"retry,omitempty"`
	Auto          *bool       `yaml:"auto,omitempty"` // nil = default true
}

// Config is the global config stored at ~/.config/nhatky/config.yaml.
type Config struct {
	APIURL  string     `yaml:"api_url,omitempty"`
	DataDir string     `yaml:"data_dir,omitempty"`
	UserID  string     `yaml:"user_id,omitempty"`
	UnitID  string     `yaml:"unit_id,omitempty"`
	Token   string     `yaml:"token,omitempty"`
	Sync    SyncConfig `yaml:"sync,omitempty"`
}

// ConfigDir returns ~/.config/nhatky, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "nhatky")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the global config and applies environment overrides.
// A missing file yields defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path and applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	return &cfg, nil
}

// Update applies fn to the file contents and saves the result. Env overrides
// are not read, so they never leak into the file.
func Update(fn func(*Config)) (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return UpdateAt(path, fn)
}

// UpdateAt is Update for an explicit path.
func UpdateAt(path string, fn func(*Config)) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	fn(cfg)
	if err := SaveTo(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values. Priority: NHATKY_* env > config.yaml > default.
func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		"NHATKY_API_URL":  &c.APIURL,
		"NHATKY_DATA_DIR": &c.DataDir,
		"NHATKY_USER_ID":  &c.UserID,
		"NHATKY_UNIT_ID":  &c.UnitID,
		"NHATKY_TOKEN":    &c.Token,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	if v := parseBoolEnv("NHATKY_AUTO_SYNC"); v != nil {
		c.Sync.Auto = v
	}
}

// Save writes the global config atomically.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg to path through a temp file and rename. The file holds
// the API token, so it is private to the user.
func SaveTo(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ServerURL returns the API base URL.
func (c *Config) ServerURL() string {
	if c.APIURL != "" {
		return strings.TrimRight(c.APIURL, "/")
	}
	return DefaultAPIURL
}

// DataDirectory returns the local store directory, ~/.local/share/nhatky by
// default. A leading ~ is expanded.
func (c *Config) DataDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := c.DataDir
	switch {
	case dir == "":
		return filepath.Join(home, ".local", "share", "nhatky"), nil
	case dir == "~":
		return home, nil
	case strings.HasPrefix(dir, "~/"):
		return filepath.Join(home, dir[2:]), nil
	}
	return dir, nil
}

// SyncInterval returns the delay between scheduled passes.
func (c *Config) SyncInterval() time.Duration {
	return parseDuration("sync.interval", c.Sync.Interval, DefaultInterval)
}

// ProbeInterval returns the reachability probe period.
func (c *Config) ProbeInterval() time.Duration {
	return parseDuration("sync.probe_interval", c.Sync.ProbeInterval, DefaultProbeInterval)
}

// RetryPolicy returns the queue retry policy.
func (c *Config) RetryPolicy() db.RetryPolicy {
	attempts := c.Sync.Retry.MaxAttempts
	if attempts < 0 {
		slog.Warn("syncconfig: negative sync.retry.max_attempts, using unlimited", "value", attempts)
		attempts = 0
	}
	return db.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   parseDuration("sync.retry.base_delay", c.Sync.Retry.BaseDelay, 0),
		MaxDelay:    parseDuration("sync.retry.max_delay", c.Sync.Retry.MaxDelay, DefaultMaxDelay),
	}
}

// AutoSyncEnabled reports whether mutating commands sync afterwards.
func (c *Config) AutoSyncEnabled() bool {
	if c.Sync.Auto != nil {
		return *c.Sync.Auto
	}
	return true
}

func parseDuration(key, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		slog.Warn("syncconfig: invalid duration, using default", "key", key, "value", value, "default", def)
		return def
	}
	return d
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := strings.ToLower(os.Getenv(envKey))
	switch v {
	case "1", "true", "yes", "on":
		b := true
		return &b
	case "0", "false", "no", "off":
		b := false
		return &b
	}
	return nil
}
