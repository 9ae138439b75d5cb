package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	envConfigFile = "ECHO_CALLBACK_CONFIG"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
}

// Load reads the optional YAML file named by ECHO_CALLBACK_CONFIG, then
// applies environment overrides, defaults and validation, in this order.
func Load() (*Config, error) {
	var cfg Config
	if fileName := os.Getenv(envConfigFile); fileName != "" {
		if err := cfg.decodeFile(fileName); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.ValidateAndInitialize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decodeFile(fileName string) error {
	f, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file '%s': %w", fileName, err)
	}
	return nil
}

func (c *Config) ValidateAndInitialize() error {
	// Validate.
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.maxBodyBytes must not be negative")
	}
	if c.Registry.SlotTTL < 0 {
		return fmt.Errorf("registry.slotTTL must not be negative")
	}
	if c.Registry.SweepInterval < 0 {
		return fmt.Errorf("registry.sweepInterval must not be negative")
	}
	if c.Registry.MaxSlots < 0 {
		return fmt.Errorf("registry.maxSlots must not be negative")
	}

	// Apply defaults.
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Registry.SlotTTL == 0 {
		c.Registry.SlotTTL = DefaultSlotTTL
	}
	if c.Registry.SweepInterval == 0 {
		c.Registry.SweepInterval = DefaultSweepInterval
	}
	if c.Registry.MaxSlots == 0 {
		c.Registry.MaxSlots = DefaultMaxSlots
	}

	return nil
}
