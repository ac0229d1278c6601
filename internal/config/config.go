package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fly-io/gpsdl/pkg/gpstask"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Remote sources
	APIURL   string `mapstructure:"api-url"`
	S3Region string `mapstructure:"s3-region"`

	// Download limits
	HTTPTimeout     string `mapstructure:"http-timeout"`
	MaxDownloadSize int64  `mapstructure:"max-download-size"`

	// Worker pool
	Workers int `mapstructure:"workers"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	// Logging
	LogFile  string `mapstructure:"log-file"`
	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from .env, environment, config file, and defaults
func Load() (*Config, error) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil {
		slog.Debug("dotenv_not_loaded", "error", err)
	}
	return LoadFrom(viper.GetViper())
}

// LoadFrom fills a Config from v after installing defaults and sources on it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	// Set defaults
	v.SetDefault("sqlite-path", ".artifacts/session.db")
	v.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	v.SetDefault("api-url", "https://api.openstreetmap.org/api/0.6")
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("http-timeout", "60s")
	v.SetDefault("max-download-size", 64*1024*1024)
	v.SetDefault("workers", 1)
	v.SetDefault("fsm-max-retries", 5)
	v.SetDefault("log-file", "")
	v.SetDefault("log-level", "info")

	// Preferences read by the integrator
	v.SetDefault(gpstask.PrefPreferMetadataName, false)
	v.SetDefault(gpstask.PrefMergeWithLocal, false)
	v.SetDefault(gpstask.PrefMakeAutoMarkers, true)

	// Environment variables (will be GPSDL_SQLITE_PATH, GPSDL_GPX_PREFERMETADATANAME, etc.)
	v.SetEnvPrefix("GPSDL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.gpsdl")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api-url cannot be empty")
	}
	if _, err := c.Timeout(); err != nil {
		return fmt.Errorf("http-timeout invalid: %w", err)
	}
	if c.MaxDownloadSize < 0 {
		return fmt.Errorf("max-download-size must be non-negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Timeout parses HTTPTimeout
func (c *Config) Timeout() (time.Duration, error) {
	return time.ParseDuration(c.HTTPTimeout)
}

// Level parses LogLevel
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log-level invalid: %w", err)
	}
	return l, nil
}

// Preferences exposes boolean preferences stored in viper
type Preferences struct {
	v *viper.Viper
}

// NewPreferences wraps v. A nil v uses the global viper instance.
func NewPreferences(v *viper.Viper) *Preferences {
	if v == nil {
		v = viper.GetViper()
	}
	return &Preferences{v: v}
}

// Bool returns the preference key, or def when it is unset.
func (p *Preferences) Bool(key string, def bool) bool {
	if p.v.Get(key) == nil {
		return def
	}
	return p.v.GetBool(key)
}

var _ gpstask.Preferences = (*Preferences)(nil)
