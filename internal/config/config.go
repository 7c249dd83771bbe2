// Package config loads the chrono TOML configuration file.
// The file lives at ~/.chrono/config.toml by default and can be overridden
// with --config. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config mirrors the TOML file. Zero values mean "use the default".
type Config struct {
	// Addr is the host:port for the HTTP and WebSocket server.
	// Default: 127.0.0.1:7878
	Addr string `toml:"addr"`

	// DBPath is the SQLite database holding the session log, tasks,
	// settings and paired devices.
	// Default: ~/.chrono/chrono.db
	DBPath string `toml:"db_path"`

	// Session lengths in minutes.
	DefaultMinutes    int `toml:"default_minutes"`
	ShortBreakMinutes int `toml:"short_break_minutes"`
	LongBreakMinutes  int `toml:"long_break_minutes"`

	// IdleTimeoutSeconds pauses a running session after this long without
	// reported activity. Default: 120
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`

	// Notifications shows a desktop notification when a session ends.
	// Default: true
	Notifications *bool `toml:"notifications"`

	// KeepAwake holds a sleep inhibitor while a session is running.
	KeepAwake bool `toml:"keep_awake"`

	// MdnsEnabled advertises the server on the local network.
	MdnsEnabled bool `toml:"mdns_enabled"`

	// RequireAuth requires a paired device token on the WebSocket and API.
	// Loopback requests are always allowed.
	RequireAuth bool `toml:"require_auth"`

	// TLS serves HTTPS and WSS with a self-signed certificate kept in
	// CertDir. Default CertDir: ~/.chrono/certs
	TLS     bool   `toml:"tls"`
	CertDir string `toml:"cert_dir"`

	// LogFile redirects the server log. Empty logs to stderr.
	LogFile string `toml:"log_file"`

	// TemplatesPath is the YAML task template file.
	// Default: ~/.chrono/templates.yaml
	TemplatesPath string `toml:"templates_path"`

	GitHub GitHubConfig `toml:"github"`
	GitLab GitLabConfig `toml:"gitlab"`
	Jira   JiraConfig   `toml:"jira"`
}

type GitHubConfig struct {
	Token string `toml:"token"`
	// Repo is "owner/name"; empty lists assigned issues everywhere.
	Repo string `toml:"repo"`
}

type GitLabConfig struct {
	Token   string `toml:"token"`
	Host    string `toml:"host"`
	Project string `toml:"project"`
}

type JiraConfig struct {
	Domain string `toml:"domain"`
	Email  string `toml:"email"`
	Token  string `toml:"token"`
}

// NotificationsEnabled reports the notifications setting, defaulting to on.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications == nil || *c.Notifications
}

// IdleTimeout returns the idle timeout as a duration, or zero for the
// timer default.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// Dir returns ~/.chrono.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// DefaultConfigPath returns ~/.chrono/config.toml.
func DefaultConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ApplyDefaults fills every unset field that has a default.
func (c *Config) ApplyDefaults() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DBPath == "" || c.TemplatesPath == "" || c.CertDir == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if c.DBPath == "" {
			c.DBPath = filepath.Join(dir, DefaultDBName)
		}
		if c.TemplatesPath == "" {
			c.TemplatesPath = filepath.Join(dir, DefaultTemplatesName)
		}
		if c.CertDir == "" {
			c.CertDir = filepath.Join(dir, DefaultCertDirName)
		}
	}
	return nil
}

// Validate rejects out-of-range session lengths.
func (c *Config) Validate() error {
	for _, f := range []struct {
		key string
		val int
	}{
		{"default_minutes", c.DefaultMinutes},
		{"short_break_minutes", c.ShortBreakMinutes},
		{"long_break_minutes", c.LongBreakMinutes},
	} {
		if f.val < 0 || f.val > MaxMinutes {
			return fmt.Errorf("%s must be between 0 and %d, got %d", f.key, MaxMinutes, f.val)
		}
	}
	if c.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("idle_timeout_seconds must not be negative, got %d", c.IdleTimeoutSeconds)
	}
	return nil
}

// WriteDefault creates a commented config file at path. An existing file
// is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the TOML file at path.
//
// An empty path tries the default location and yields an empty Config when
// that file does not exist. An explicit path must exist. Unknown keys are
// rejected so typos are not silently ignored.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in config file %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}
