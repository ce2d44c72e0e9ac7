package authsync

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config is the client configuration, read from TOML and overridden by the
// environment.
type Config struct {
	API     APIConfig     `toml:"api"`
	UI      UIConfig      `toml:"ui"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig points at the marketplace backend.
type APIConfig struct {
	BaseURL string        `toml:"base_url" env:"AUTHSYNC_BASE_URL"`
	Timeout time.Duration `toml:"timeout" env:"AUTHSYNC_TIMEOUT"`
}

// UIConfig controls consumer behaviour.
type UIConfig struct {
	StatusTTL time.Duration `toml:"status_ttl" env:"AUTHSYNC_STATUS_TTL"`
}

// StorageConfig locates the persistent hint store. An empty path keeps
// hints in memory.
type StorageConfig struct {
	HintsPath string `toml:"hints_path" env:"AUTHSYNC_HINTS_PATH"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level" env:"AUTHSYNC_LOG_LEVEL"`
}

// DefaultConfig returns the embedded example configuration.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// LoadConfig reads path on top of the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values that have no sane fallback.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return newFailure(ErrValidation, "api.base_url is required", nil, map[string]any{"field": "api.base_url"})
	}
	if c.API.Timeout < 0 || c.UI.StatusTTL < 0 {
		return newFailure(ErrValidation, "durations must be positive", nil, nil)
	}
	return nil
}

// CreateConfigFile writes the example configuration to path.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
