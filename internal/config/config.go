// Package config loads the YAML application configuration with
// environment variable fallbacks for secrets.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Generator GeneratorConfig           `yaml:"generator"`
	Engine    EngineConfig              `yaml:"engine"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL
// means run without persistence.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ProviderConfig holds LLM provider settings. Type selects the wire
// protocol ("openai" or "gemini"); the map key is the provider name
// used in "provider/model" ids.
type ProviderConfig struct {
	Type      string `yaml:"type"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Key resolves the API key, preferring the literal value over the
// named environment variable.
func (p ProviderConfig) Key() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// GeneratorConfig selects the model used for workflow generation.
type GeneratorConfig struct {
	Model string `yaml:"model"`
}

// EngineConfig tunes workflow execution.
type EngineConfig struct {
	DefaultModel      string `yaml:"default_model"`       // model for nodes that declare none
	RunTimeoutSeconds int    `yaml:"run_timeout_seconds"` // global per-run deadline
	CacheSize         int    `yaml:"cache_size"`          // compiled graph cache capacity
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Providers: map[string]ProviderConfig{},
		Engine: EngineConfig{
			RunTimeoutSeconds: 600,
			CacheSize:         128,
		},
	}
}

// Load reads a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return cfg, nil
}

// LoadDefault loads "config.yaml" from the current directory, falling
// back to defaults when the file does not exist. Other errors
// (permissions, malformed YAML) are returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}
