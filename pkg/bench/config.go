// Package bench holds the shared bench configuration: which serial
// port each instrument lives on, written once by bench-info and read
// by every command.
package bench

import (
	"encoding/json"
	"os"
)

const DefaultConfigFile = "wetbench.json"

// Config holds the bench configuration
type Config struct {
	Arm     DeviceConfig `json:"arm"`
	Balance DeviceConfig `json:"balance"`
	Pump    PumpConfig   `json:"pump"`
	Profile string       `json:"profile,omitempty"`
}

// DeviceConfig holds configuration for a single serial instrument
type DeviceConfig struct {
	Port string `json:"port"`
}

// PumpConfig holds configuration for the pump drive
type PumpConfig struct {
	Port   string `json:"port"`
	Number int    `json:"number,omitempty"`
}

// IsComplete returns true if every instrument has a port assigned
func (c *Config) IsComplete() bool {
	return c.Arm.Port != "" && c.Balance.Port != "" && c.Pump.Port != ""
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
