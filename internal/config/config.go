package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Payment   PaymentConfig   `yaml:"payment"`
	Assistant AssistantConfig `yaml:"assistant"`
	Auth      AuthConfig      `yaml:"auth"`
	Tree      TreeConfig      `yaml:"tree"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PaymentConfig contains payment gateway settings.
type PaymentConfig struct {
	SecretKey     string `yaml:"-"` // env-only, never in YAML
	WebhookSecret string `yaml:"-"` // env-only, never in YAML
	Currency      string `yaml:"currency"`
	ReturnOrigin  string `yaml:"return_origin"`
}

// AssistantConfig contains goal-planning assistant settings.
type AssistantConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
	Model  string `yaml:"model"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// TreeConfig bounds tree materialization.
type TreeConfig struct {
	MaxDepth       int `yaml:"max_depth"`
	MaxConcurrency int `yaml:"max_concurrency"`
}

// TransferConfig contains export/import settings.
type TransferConfig struct {
	PreserveIDs bool `yaml:"preserve_ids"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SettlementInterval Duration `yaml:"settlement_interval"`
	ReconcileInterval  Duration `yaml:"reconcile_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
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

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("WAYPOINT_CONFIG_PATH", "config/waypoint.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(true); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadCLI loads configuration for offline commands. Secret validation is
// skipped because no gateway or assistant call happens.
func LoadCLI() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("WAYPOINT_CONFIG_PATH", "config/waypoint.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(true); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/waypoint.db",
		},
		Payment: PaymentConfig{
			Currency:     "jpy",
			ReturnOrigin: "http://localhost:3000",
		},
		Assistant: AssistantConfig{
			Model: "gpt-4o-mini",
		},
		Tree: TreeConfig{
			MaxDepth:       32,
			MaxConcurrency: 8,
		},
		Worker: WorkerConfig{
			SettlementInterval: Duration(15 * time.Minute),
			ReconcileInterval:  Duration(6 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is OK; use defaults
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("WAYPOINT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WAYPOINT_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("WAYPOINT_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("WAYPOINT_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("WAYPOINT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Payment (STRIPE_* are industry convention)
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payment.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Payment.WebhookSecret = v
	}
	if v := os.Getenv("WAYPOINT_CURRENCY"); v != "" {
		cfg.Payment.Currency = v
	}
	if v := os.Getenv("WAYPOINT_RETURN_ORIGIN"); v != "" {
		cfg.Payment.ReturnOrigin = v
	}

	// Assistant (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Assistant.APIKey = v
	}
	if v := os.Getenv("WAYPOINT_ASSISTANT_MODEL"); v != "" {
		cfg.Assistant.Model = v
	}

	// Auth
	if v := os.Getenv("WAYPOINT_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Tree
	if v := os.Getenv("WAYPOINT_TREE_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tree.MaxDepth = n
		}
	}
	if v := os.Getenv("WAYPOINT_TREE_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tree.MaxConcurrency = n
		}
	}

	// Transfer
	if v := os.Getenv("WAYPOINT_TRANSFER_PRESERVE_IDS"); v != "" {
		cfg.Transfer.PreserveIDs = v == "true" || v == "1"
	}

	// Worker
	if v := os.Getenv("WAYPOINT_SETTLEMENT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.SettlementInterval = Duration(d)
		}
	}
	if v := os.Getenv("WAYPOINT_RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.ReconcileInterval = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("WAYPOINT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WAYPOINT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (WAYPOINT_DEV_MODE=true), secret validation is skipped.
func (c *Config) validate(requireSecrets bool) error {
	if c.Tree.MaxDepth <= 0 {
		return errors.New("tree.max_depth must be positive")
	}
	if c.Tree.MaxConcurrency <= 0 {
		return errors.New("tree.max_concurrency must be positive")
	}

	if !requireSecrets || os.Getenv("WAYPOINT_DEV_MODE") == "true" {
		return nil
	}
	if c.Payment.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("WAYPOINT_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
