// Package config loads the otto CLI configuration.
//
// Configuration comes from three layers, later layers winning:
// built-in defaults, the TOML file at ~/.otto/config.toml (or the path
// given with --config), and OTTO_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFileName is the configuration file inside the otto
	// directory.
	ConfigFileName = "config.toml"

	// SessionFileName stores the saved session cookie between CLI
	// invocations.
	SessionFileName = "session.json"

	// DefaultServer is used when no server is configured.
	DefaultServer = "http://localhost:3000"
)

// Config is the complete otto CLI configuration.
type Config struct {
	// Server is the backend base URL.
	Server string `toml:"server"`

	// Username is the default login name. The password is never stored
	// here; it is prompted for or passed per invocation.
	Username string `toml:"username"`

	// SessionFile is where the session cookie is persisted. Defaults
	// to session.json next to the config file.
	SessionFile string `toml:"session_file"`

	// Log contains logging configuration.
	Log LogConfig `toml:"log"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: DefaultServer,
		Log:    LogConfig{Level: "warn"},
	}
}

// Dir returns the otto configuration directory, ~/.otto.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".otto"), nil
}

// Load reads the configuration file at path on top of the defaults.
// A missing file is not an error; the defaults apply. Environment
// overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: stat %s: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.SessionFile == "" {
		cfg.SessionFile = filepath.Join(filepath.Dir(path), SessionFileName)
	}
	return cfg, cfg.Validate()
}

// LoadDefault loads the configuration from ~/.otto/config.toml.
func LoadDefault() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Default(), err
	}
	return Load(filepath.Join(dir, ConfigFileName))
}

// applyEnv overlays OTTO_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OTTO_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("OTTO_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("OTTO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: server %q must be an absolute URL", c.Server)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
