package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeReplace = "replace"
	ModeAppend  = "append"
)

type Config struct {
	Server struct {
		Addr              string        `yaml:"addr"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	} `yaml:"server"`

	Checker struct {
		Timeout       time.Duration `yaml:"timeout"`
		Workers       int           `yaml:"workers"`
		UserAgent     string        `yaml:"user_agent"`
		DefaultScheme string        `yaml:"default_scheme"`
	} `yaml:"checker"`

	Results struct {
		// SingleCheckMode is "replace" or "append".
		SingleCheckMode string `yaml:"single_check_mode"`
	} `yaml:"results"`

	Session struct {
		CookieName    string        `yaml:"cookie_name"`
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"session"`

	Store struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"store"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.ReadHeaderTimeout = 5 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.MaxUploadBytes = 10 << 20

	cfg.Checker.Timeout = 5 * time.Second
	cfg.Checker.Workers = 10
	cfg.Checker.UserAgent = "url-status-report/1.0"
	cfg.Checker.DefaultScheme = "https"

	cfg.Results.SingleCheckMode = ModeReplace

	cfg.Session.CookieName = "session_id"
	cfg.Session.TTL = 24 * time.Hour
	cfg.Session.SweepInterval = 10 * time.Minute

	cfg.Store.Driver = "memory"
	cfg.Store.Path = "data/results.db"

	cfg.Log.Level = "info"
	return &cfg
}

// LoadConfig reads the YAML file at path over the defaults. A missing file
// is not an error; the defaults are returned as is.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Checker.Timeout <= 0 {
		errs = append(errs, errors.New("checker.timeout must be positive"))
	}
	if c.Checker.Workers <= 0 {
		errs = append(errs, errors.New("checker.workers must be positive"))
	}
	switch c.Results.SingleCheckMode {
	case ModeReplace, ModeAppend:
	default:
		errs = append(errs, fmt.Errorf("results.single_check_mode %q must be %q or %q",
			c.Results.SingleCheckMode, ModeReplace, ModeAppend))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name must not be empty"))
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.ttl and session.sweep_interval must be positive"))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Log.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
