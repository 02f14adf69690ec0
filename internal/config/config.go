package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunConfig holds the settings of one CLI generation run. Zero-valued
// fields in a YAML file keep their defaults.
type RunConfig struct {
	Model  string `yaml:"model"`
	Prompt string `yaml:"prompt"`

	MaxTokens     int     `yaml:"max_tokens"`
	WarnThreshold float64 `yaml:"warn_threshold"`
	RollingWindow int     `yaml:"rolling_window"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsAddr string `yaml:"metrics_addr"`
	FlightAddr  string `yaml:"flight_addr"`
	ArrowOut    string `yaml:"arrow_out"`

	JSON     bool `yaml:"json"`
	Progress bool `yaml:"progress"`
}

func Default() RunConfig {
	return RunConfig{
		MaxTokens:     50,
		WarnThreshold: 0.75,
		RollingWindow: 20,
		LogLevel:      "info",
		LogFormat:     "console",
		Progress:      true,
	}
}

func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("invalid model: must not be empty")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("invalid max_tokens: %d (must be non-negative)", c.MaxTokens)
	}
	if c.WarnThreshold < 0 || c.WarnThreshold > 1 {
		return fmt.Errorf("invalid warn_threshold: %v (must be within [0, 1])", c.WarnThreshold)
	}
	if c.RollingWindow < 1 {
		return fmt.Errorf("invalid rolling_window: %d (must be positive)", c.RollingWindow)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}
	if c.FlightAddr != "" && !strings.Contains(c.FlightAddr, ":") {
		return fmt.Errorf("invalid flight_addr: %q (must be host:port)", c.FlightAddr)
	}
	return nil
}

// Load reads a YAML run file on top of Default.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
