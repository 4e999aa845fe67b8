package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manager implements the ConfigManager interface.
type Manager struct{}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{}
}

// Load reads and parses the configuration file.
func (m *Manager) Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration values are valid.
func (m *Manager) Validate(config *Config) error {
	if strings.TrimSpace(config.Server.ListenAddr) == "" {
		return fmt.Errorf("server listen_addr cannot be empty")
	}

	if strings.TrimSpace(config.Digest.Realm) == "" {
		return fmt.Errorf("digest realm cannot be empty")
	}
	switch strings.ToUpper(config.Digest.Algorithm) {
	case "MD5", "SHA-256", "AUTO":
	default:
		return fmt.Errorf("invalid digest algorithm: %s (must be MD5, SHA-256, or AUTO)", config.Digest.Algorithm)
	}
	if config.Digest.NonceTimeoutSeconds <= 0 {
		return fmt.Errorf("nonce_timeout_seconds must be positive, got %d", config.Digest.NonceTimeoutSeconds)
	}
	if config.Digest.NonceTableSize < 0 {
		return fmt.Errorf("nonce_table_size cannot be negative, got %d", config.Digest.NonceTableSize)
	}
	if config.Digest.RandomSeedSize <= 0 {
		return fmt.Errorf("random_seed_size must be positive, got %d", config.Digest.RandomSeedSize)
	}
	if config.Digest.ReuseTimeoutMS <= 0 {
		return fmt.Errorf("reuse_timeout_ms must be positive, got %d", config.Digest.ReuseTimeoutMS)
	}
	if config.Digest.JumpbackMaxMS < 0 || config.Digest.JumpbackMaxMS > 127 {
		return fmt.Errorf("jumpback_max_ms out of range: %d (must be 0-127)", config.Digest.JumpbackMaxMS)
	}

	switch strings.ToLower(config.Credentials.Driver) {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid credentials driver: %s (must be sqlite or memory)", config.Credentials.Driver)
	}
	if strings.ToLower(config.Credentials.Driver) == "sqlite" && strings.TrimSpace(config.Credentials.DSN) == "" {
		return fmt.Errorf("credentials dsn cannot be empty when driver is sqlite")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	return nil
}

// GetDefaultConfig returns a configuration with default values.
func GetDefaultConfig() *Config {
	var c Config
	c.Server.ListenAddr = ":8443"
	c.Digest.Realm = "example.com"
	c.Digest.Algorithm = "SHA-256"
	c.Digest.NonceTimeoutSeconds = 60
	c.Digest.NonceTableSize = 4096
	c.Digest.RandomSeedSize = 16
	c.Digest.ReuseTimeoutMS = 30000
	c.Digest.JumpbackMaxMS = 127
	c.Credentials.Driver = "sqlite"
	c.Credentials.DSN = "./digestauthd.db"
	c.Logging.Level = "info"
	c.Logging.File = "./digestauthd.log"
	return &c
}
