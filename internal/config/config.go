// Package config provides configuration loading for actsim.
// Values are resolved in order: defaults, then an optional YAML file, then
// ACTSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/actsim/internal/logging"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "ACTSIM_"

// Config contains all actsim settings.
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Client  ClientConfig  `yaml:"client" envPrefix:"CLIENT_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
}

// ServerConfig configures the reference API server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" env:"ADDR"`

	// DBPath is the SQLite file holding snapshots and event logs.
	DBPath string `yaml:"db_path" env:"DB_PATH"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`

	// ShutdownTimeout bounds graceful shutdown after a signal.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ClientConfig configures the persistence manager used by "actsim play".
type ClientConfig struct {
	// RemoteURL is the API server root. Empty runs offline against the
	// local cache only.
	RemoteURL string `yaml:"remote_url" env:"REMOTE_URL"`

	// CachePath is the SQLite file backing the local cache.
	CachePath string `yaml:"cache_path" env:"CACHE_PATH"`

	// RequestTimeout bounds each remote HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`

	// SyncTimeout bounds each detached remote push.
	SyncTimeout time.Duration `yaml:"sync_timeout" env:"SYNC_TIMEOUT"`

	// Origin identifies this client in broadcasts. Empty generates one.
	Origin string `yaml:"origin" env:"ORIGIN"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", "trace",
	// "warn" or "error".
	Level string `yaml:"level" env:"LEVEL"`

	// Format selects "text" (default) or "json" log lines.
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			DBPath:            "actsim.db",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Client: ClientConfig{
			CachePath:      "actsim-cache.db",
			RequestTimeout: 10 * time.Second,
			SyncTimeout:    15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the
// defaults. Unknown keys are rejected.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any ACTSIM_* variables that are set.
// Unset variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.DBPath == "" {
		return errors.New("server.db_path must not be empty")
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("server.read_header_timeout must be positive, got %v", c.Server.ReadHeaderTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}
	if c.Client.CachePath == "" {
		return errors.New("client.cache_path must not be empty")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client.request_timeout must be positive, got %v", c.Client.RequestTimeout)
	}
	if c.Client.SyncTimeout <= 0 {
		return fmt.Errorf("client.sync_timeout must be positive, got %v", c.Client.SyncTimeout)
	}
	if c.Client.RemoteURL != "" {
		u, err := url.Parse(c.Client.RemoteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("client.remote_url must be an http(s) URL, got %q", c.Client.RemoteURL)
		}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, logging.Levels)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, logging.Formats)
	}
	return nil
}
