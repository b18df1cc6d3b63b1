// Package config loads and validates netreach configuration from YAML
// files, with struct-tag validation and sensible defaults for every
// section.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Discovery configuration
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Output configuration
	Output OutputConfig `yaml:"output" json:"output"`
}

// ScanningConfig holds scan-related settings.
type ScanningConfig struct {
	// Default ports to scan
	DefaultPorts string `yaml:"default_ports" json:"default_ports" validate:"required"`

	// Default scan technique
	DefaultScanType string `yaml:"default_scan_type" json:"default_scan_type" validate:"oneof=connect syn udp comprehensive"`

	// UDP ports for the comprehensive technique (empty = built-in list)
	UDPPorts string `yaml:"udp_ports" json:"udp_ports"`

	// Per-probe timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`

	// Maximum in-flight probes
	MaxParallel int `yaml:"max_parallel" json:"max_parallel" validate:"gt=0,lte=4096"`

	// Additional attempts after a probe timeout
	Retries int `yaml:"retries" json:"retries" validate:"gte=0"`

	// Shuffle probe dispatch order
	Randomize bool `yaml:"randomize" json:"randomize"`

	// Probes per second across all workers (0 = unlimited)
	RateLimit int `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`

	// Enable service detection on open ports
	EnableServiceDetection bool `yaml:"enable_service_detection" json:"enable_service_detection"`

	// Enable the TTL-based OS guess
	EnableOSDetection bool `yaml:"enable_os_detection" json:"enable_os_detection"`

	// Skip port probes for hosts discovery reported down
	SkipDownHosts bool `yaml:"skip_down_hosts" json:"skip_down_hosts"`
}

// DiscoveryConfig holds host discovery settings.
type DiscoveryConfig struct {
	// Discovery method: ping, tcp, or arp
	Method string `yaml:"method" json:"method" validate:"oneof=ping tcp arp"`

	// Per-host probe timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`

	// Maximum concurrent host probes
	MaxParallel int `yaml:"max_parallel" json:"max_parallel" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format: text or json
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Output destination: stdout, stderr, or a file path
	Output string `yaml:"output" json:"output"`
}

// OutputConfig holds report output settings.
type OutputConfig struct {
	// Report format: json, xml, csv, or human
	Format string `yaml:"format" json:"format" validate:"oneof=json xml csv human"`

	// Output file path (empty = stdout)
	File string `yaml:"file" json:"file"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			DefaultPorts:           "22,80,443,8080,8443",
			DefaultScanType:        "connect",
			Timeout:                3 * time.Second,
			MaxParallel:            100,
			Retries:                1,
			Randomize:              false,
			RateLimit:              0,
			EnableServiceDetection: true,
			EnableOSDetection:      false,
			SkipDownHosts:          false,
		},
		Discovery: DiscoveryConfig{
			Method:      "ping",
			Timeout:     2 * time.Second,
			MaxParallel: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Output: OutputConfig{
			Format: "human",
			File:   "",
		},
	}
}

// Load loads configuration from a file, starting from defaults. A
// missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Logging.Output == "" {
		return fmt.Errorf("logging.output must not be empty")
	}
	return nil
}
