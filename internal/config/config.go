// ABOUTME: Configuration loading and parsing for coven-responder
// ABOUTME: Reads YAML or TOML with environment variable expansion, defaults and validation

package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is absent.
const (
	DefaultFireProbability = 0.5
	DefaultRecencyCapacity = 20
	DefaultDedupeTTL       = 5 * time.Minute
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config represents the complete coven-responder configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Responder ResponderConfig `yaml:"responder" toml:"responder"`
	Matrix    MatrixConfig    `yaml:"matrix" toml:"matrix"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ServerConfig holds the HTTP API address. Empty disables the API.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ResponderConfig holds the settings used for chats that never set their own.
// Pointers distinguish "absent" from an explicit zero.
type ResponderConfig struct {
	DefaultFireProbability *float64 `yaml:"default_fire_probability" toml:"default_fire_probability"`
	DefaultRecencyCapacity *int     `yaml:"default_recency_capacity" toml:"default_recency_capacity"`
}

// MatrixConfig holds Matrix transport configuration
type MatrixConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled"`
	Homeserver   string   `yaml:"homeserver" toml:"homeserver"`
	Username     string   `yaml:"username" toml:"username"`
	Password     string   `yaml:"password" toml:"password"`
	RecoveryKey  string   `yaml:"recovery_key" toml:"recovery_key"`
	AllowedRooms []string `yaml:"allowed_rooms" toml:"allowed_rooms"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// FireProbability returns the configured default fire probability.
func (r ResponderConfig) FireProbability() float64 {
	if r.DefaultFireProbability == nil {
		return DefaultFireProbability
	}
	return *r.DefaultFireProbability
}

// RecencyCapacity returns the configured default recency capacity.
func (r ResponderConfig) RecencyCapacity() int {
	if r.DefaultRecencyCapacity == nil {
		return DefaultRecencyCapacity
	}
	return *r.DefaultRecencyCapacity
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" if unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() error {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	c.Matrix.DedupeTTL = DefaultDedupeTTL
	if c.Matrix.DedupeTTLRaw != "" {
		ttl, err := time.ParseDuration(c.Matrix.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", c.Matrix.DedupeTTLRaw, err)
		}
		c.Matrix.DedupeTTL = ttl
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if p := c.Responder.FireProbability(); math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("responder.default_fire_probability must be between 0 and 1")
	}
	if c.Responder.RecencyCapacity() < 0 {
		return fmt.Errorf("responder.default_recency_capacity must not be negative")
	}

	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" {
			return fmt.Errorf("matrix.homeserver is required when matrix is enabled")
		}
		u, err := url.Parse(c.Matrix.Homeserver)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("matrix.homeserver must be an http or https URL")
		}
		if c.Matrix.Username == "" {
			return fmt.Errorf("matrix.username is required when matrix is enabled")
		}
		if c.Matrix.Password == "" {
			return fmt.Errorf("matrix.password is required when matrix is enabled")
		}
	}
	if c.Matrix.DedupeTTL <= 0 {
		return fmt.Errorf("matrix.dedupe_ttl must be positive")
	}

	return nil
}

// DefaultPath returns where the config file is looked up when no path is given.
// Priority: COVEN_RESPONDER_CONFIG > XDG_CONFIG_HOME/coven/responder.yaml > ~/.config/coven/responder.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_RESPONDER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "responder.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "responder.yaml")
}

// DataDir returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}
