// Package config loads the zapgate YAML configuration file. Environment
// variables referenced as ${VAR_NAME} are expanded before parsing; nothing
// environment-specific is ever hardcoded.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/store"
)

// Config is the top-level zapgate configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database store.Config   `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	// PublicRateLimit caps unauthenticated endpoints (health, webhook,
	// login) per client IP per minute.
	PublicRateLimit int `yaml:"public_rate_limit"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	JWTExpiry     string `yaml:"jwt_expiry"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// ProviderConfig holds the upstream messaging accounts the pool allocates
// from.
type ProviderConfig struct {
	Accounts []provider.Account `yaml:"accounts"`
}

// AuditConfig controls audit logging behavior. ExcludedPaths are skipped
// entirely to avoid noise; this is configuration, not core logic.
type AuditConfig struct {
	ExcludedPaths []string `yaml:"excluded_paths"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML configuration file, expanding ${VAR_NAME}
// references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORSOrigins:     []string{"*"},
			PublicRateLimit: 60,
		},
		Auth: AuthConfig{
			JWTExpiry: "1h",
		},
		Database: store.Config{
			Driver: "sqlite",
		},
		Audit: AuditConfig{
			ExcludedPaths: []string{"/health", "/openapi.json"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes the default configuration to a YAML file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
