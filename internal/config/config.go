// ABOUTME: Configuration loading and parsing for the chatdesk console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatdesk configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Profile  ProfileConfig  `yaml:"profile"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig holds the REST backend connection settings.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// RealtimeConfig holds the broadcast service connection settings.
// AuthPath is the backend endpoint used for per-channel authorization.
type RealtimeConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"` // "http" or "https"
	AppKey   string `yaml:"app_key"`
	AuthPath string `yaml:"auth_path"`
}

// ProfileConfig holds the local session profile cache settings.
type ProfileConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envVarPattern matches ${VAR_NAME} references in the raw YAML content.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded
// before parsing; unset variables expand to the empty string.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config populated with defaults. Load starts from these
// so a partial file only overrides what it names.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Timeout:    15 * time.Second,
			TimeoutRaw: "15s",
		},
		Realtime: RealtimeConfig{
			Port:     443,
			Scheme:   "https",
			AuthPath: "/api/broadcasting/auth",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// parseDurations converts raw duration strings into time.Duration values.
func (c *Config) parseDurations() error {
	if c.Backend.TimeoutRaw != "" {
		d, err := time.ParseDuration(c.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout: %w", err)
		}
		c.Backend.Timeout = d
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Realtime.Host == "" {
		return fmt.Errorf("realtime.host is required")
	}
	if c.Realtime.AppKey == "" {
		return fmt.Errorf("realtime.app_key is required")
	}
	if c.Realtime.Scheme != "http" && c.Realtime.Scheme != "https" {
		return fmt.Errorf("realtime.scheme must be http or https, got %q", c.Realtime.Scheme)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	return nil
}
