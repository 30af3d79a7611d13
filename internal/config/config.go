// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/viper"
)

const defaultMTU = 1500

// Config is the top-level static configuration. Maps to the `tyto:`
// root key in YAML.
type Config struct {
	PIDFile    string            `mapstructure:"pid_file"`
	Log        LogConfig         `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Devices    []DeviceConfig    `mapstructure:"devices"`
	Interfaces []InterfaceConfig `mapstructure:"interfaces"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string           `mapstructure:"level"`  // debug / info / warn / error
	Format string           `mapstructure:"format"` // json / text
	File   FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// DeviceConfig describes one link device to bring up.
type DeviceConfig struct {
	Name        string         `mapstructure:"name"`
	Type        string         `mapstructure:"type"`         // channel / pcapfile / tun / afpacket
	MTU         int            `mapstructure:"mtu"`          // 0 = 1500
	CaptureFile string         `mapstructure:"capture_file"` // optional ingress recording
	Options     map[string]any `mapstructure:"options"`      // device-type specific
}

// InterfaceConfig describes one IPv4 interface binding.
type InterfaceConfig struct {
	Device  string `mapstructure:"device"`
	Unicast string `mapstructure:"unicast"`
	Netmask string `mapstructure:"netmask"`
}

// configRoot is the top-level wrapper matching the YAML structure `tyto: ...`.
type configRoot struct {
	Tyto Config `mapstructure:"tyto"`
}

// Load loads configuration from file. The YAML file uses `tyto:` as
// root key; env vars override with a TYTO_ prefix via the key replacer
// (e.g. key "tyto.log.level" → env "TYTO_LOG_LEVEL").
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Tyto

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration. All keys use the
// "tyto." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tyto.pid_file", "/var/run/tyto.pid")

	// Log defaults
	v.SetDefault("tyto.log.level", "info")
	v.SetDefault("tyto.log.format", "json")
	v.SetDefault("tyto.log.file.enabled", false)
	v.SetDefault("tyto.log.file.path", "/var/log/tyto/tyto.log")
	v.SetDefault("tyto.log.file.rotation.max_size_mb", 100)
	v.SetDefault("tyto.log.file.rotation.max_age_days", 30)
	v.SetDefault("tyto.log.file.rotation.max_backups", 5)
	v.SetDefault("tyto.log.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("tyto.metrics.enabled", true)
	v.SetDefault("tyto.metrics.listen", ":9091")
	v.SetDefault("tyto.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults. Address syntax is deliberately not checked here; interface
// bring-up parses addresses and fails hard on bad ones, so validation
// stays structural.
func (cfg *Config) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics listen address %q: %w", cfg.Metrics.Listen, err)
		}
	}

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}

	names := make(map[string]bool, len(cfg.Devices))
	for i := range cfg.Devices {
		dev := &cfg.Devices[i]
		if dev.Name == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if names[dev.Name] {
			return fmt.Errorf("duplicate device name: %s", dev.Name)
		}
		names[dev.Name] = true

		if dev.Type == "" {
			return fmt.Errorf("device %s: type is required", dev.Name)
		}
		if dev.MTU == 0 {
			dev.MTU = defaultMTU
		} else if dev.MTU < 68 {
			// RFC 791 lower bound for any IPv4 link.
			return fmt.Errorf("device %s: mtu %d is below the IPv4 minimum", dev.Name, dev.MTU)
		}
	}

	bound := make(map[string]bool, len(cfg.Interfaces))
	for i, ifc := range cfg.Interfaces {
		if ifc.Device == "" {
			return fmt.Errorf("interface %d: device is required", i)
		}
		if !names[ifc.Device] {
			return fmt.Errorf("interface %d: unknown device %q", i, ifc.Device)
		}
		if bound[ifc.Device] {
			return fmt.Errorf("interface %d: device %q already has an IPv4 interface", i, ifc.Device)
		}
		bound[ifc.Device] = true

		if ifc.Unicast == "" {
			return fmt.Errorf("interface %d: unicast is required", i)
		}
		if ifc.Netmask == "" {
			return fmt.Errorf("interface %d: netmask is required", i)
		}
	}

	return nil
}
