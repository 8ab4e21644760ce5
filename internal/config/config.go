package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Reconciliation Reconciliation `yaml:"reconciliation"`
	Output         Output         `yaml:"output"`
	Server         Server         `yaml:"server"`
	Logging        Logging        `yaml:"logging"`
}

type Reconciliation struct {
	EnrollThreshold    float64 `yaml:"enroll_threshold"`
	ReconcileThreshold float64 `yaml:"reconcile_threshold"`
	ConfidenceFloor    float64 `yaml:"confidence_floor"`
	Workers            int     `yaml:"workers"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for selfheal.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "selfheal")
}

// DataDir returns the XDG data directory for selfheal.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "selfheal")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/selfheal/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'selfheal init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Reconciliation: Reconciliation{
			EnrollThreshold:    0.75,
			ReconcileThreshold: 0.35,
			ConfidenceFloor:    0.6,
			Workers:            4,
		},
		Server:  Server{Port: 8600},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
