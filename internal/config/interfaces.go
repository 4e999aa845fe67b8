package config

// Config represents the full daemon configuration: how it listens,
// how digest verification behaves, where credentials live, and how it
// logs.
type Config struct {
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Digest struct {
		Realm               string `yaml:"realm"`
		Algorithm           string `yaml:"algorithm"`
		NonceTimeoutSeconds int    `yaml:"nonce_timeout_seconds"`
		NonceTableSize      int    `yaml:"nonce_table_size"`
		RandomSeedSize      int    `yaml:"random_seed_size"`
		ReuseTimeoutMS      int64  `yaml:"reuse_timeout_ms"`
		JumpbackMaxMS       int64  `yaml:"jumpback_max_ms"`
	} `yaml:"digest"`

	Credentials struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"credentials"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	Load(filename string) (*Config, error)
	Validate(config *Config) error
}
