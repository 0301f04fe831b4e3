// Package config loads the rasta-core service configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GatewayConfig holds payment gateway credentials.
type GatewayConfig struct {
	// BaseURL of the remote gateway API. Empty means the in-process sandbox
	// gateway is used (local development and tests).
	BaseURL string `yaml:"base_url"`
	KeyID   string `yaml:"key_id"`
	Secret  string `yaml:"secret"`
}

// PushConfig holds push notification delivery settings.
type PushConfig struct {
	// URL of the push delivery endpoint. Empty disables delivery.
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Config represents the service configuration file.
type Config struct {
	Port       int           `yaml:"port"`
	AuthSecret string        `yaml:"auth_secret"`
	Gateway    GatewayConfig `yaml:"gateway"`
	Push       PushConfig    `yaml:"push"`
	// LevelThresholds is the ascending cumulative-XP threshold per level.
	// Index i is the XP required to reach level i+1.
	LevelThresholds []int `yaml:"level_thresholds"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Port:       8900,
		AuthSecret: "rasta_dev_auth_secret",
		Gateway: GatewayConfig{
			KeyID:  "rzp_sim_key",
			Secret: "rzp_sim_secret",
		},
		LevelThresholds: []int{0, 100, 250, 500, 1000, 2000, 4000, 8000},
	}
}

// Load reads the config from the given path. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Gateway.Secret == "" {
		return fmt.Errorf("gateway.secret must be set")
	}
	if len(c.LevelThresholds) == 0 {
		return fmt.Errorf("level_thresholds must not be empty")
	}
	for i := 1; i < len(c.LevelThresholds); i++ {
		if c.LevelThresholds[i] <= c.LevelThresholds[i-1] {
			return fmt.Errorf("level_thresholds must be strictly ascending")
		}
	}
	return nil
}
