// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/ipingest/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `ipingest:` root key in YAML.
type GlobalConfig struct {
	Decoder DecoderConfig `mapstructure:"decoder" yaml:"decoder"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ─── Decoder ───

// DecoderConfig configures IP ingestion.
type DecoderConfig struct {
	IPv4 IPv4Config `mapstructure:"ipv4" yaml:"ipv4"`
	Flow FlowConfig `mapstructure:"flow" yaml:"flow"`
}

// IPv4Config controls header validation and fragment reassembly.
type IPv4Config struct {
	MaxFragments  int    `mapstructure:"max_fragments" yaml:"max_fragments"`   // Outstanding fragments per flow
	ContextTTL    string `mapstructure:"context_ttl" yaml:"context_ttl"`       // e.g. "120s"
	CheckChecksum bool   `mapstructure:"check_checksum" yaml:"check_checksum"` // Off by default: offloaded captures carry bogus checksums
}

// FlowConfig controls the flow context store.
type FlowConfig struct {
	CleanupInterval string `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// ContextTTLDuration returns the parsed context TTL. Only valid after
// ValidateAndApplyDefaults.
func (c IPv4Config) ContextTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ContextTTL)
	return d
}

// CleanupIntervalDuration returns the parsed janitor period. Only valid
// after ValidateAndApplyDefaults.
func (c FlowConfig) CleanupIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	return d
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`   // MB
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `ipingest: ...`.
type configRoot struct {
	IPIngest GlobalConfig `mapstructure:"ipingest"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `ipingest:` as root key; env vars use the IPINGEST_ prefix
// (e.g. IPINGEST_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `ipingest.` key prefix maps to `IPINGEST_` via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.IPIngest

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "ipingest." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("ipingest.log.level", "info")
	v.SetDefault("ipingest.log.format", "text")
	v.SetDefault("ipingest.log.outputs.file.enabled", false)
	v.SetDefault("ipingest.log.outputs.file.path", "/var/log/ipingest/ipingest.log")
	v.SetDefault("ipingest.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("ipingest.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("ipingest.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("ipingest.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("ipingest.metrics.enabled", false)
	v.SetDefault("ipingest.metrics.listen", ":9091")
	v.SetDefault("ipingest.metrics.path", "/metrics")

	// Decoder defaults
	v.SetDefault("ipingest.decoder.ipv4.max_fragments", 50)
	v.SetDefault("ipingest.decoder.ipv4.context_ttl", "120s")
	v.SetDefault("ipingest.decoder.ipv4.check_checksum", false)
	v.SetDefault("ipingest.decoder.flow.cleanup_interval", "30s")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Decoder validation ──
	ip := &cfg.Decoder.IPv4
	if ip.MaxFragments <= 0 {
		return fmt.Errorf("%w: decoder.ipv4.max_fragments must be positive, got %d", core.ErrConfigInvalid, ip.MaxFragments)
	}
	if ip.ContextTTL == "" {
		ip.ContextTTL = core.DefaultContextTTL.String()
	}
	if d, err := time.ParseDuration(ip.ContextTTL); err != nil || d <= 0 {
		return fmt.Errorf("%w: decoder.ipv4.context_ttl %q is not a positive duration", core.ErrConfigInvalid, ip.ContextTTL)
	}
	if cfg.Decoder.Flow.CleanupInterval == "" {
		cfg.Decoder.Flow.CleanupInterval = "30s"
	}
	if _, err := time.ParseDuration(cfg.Decoder.Flow.CleanupInterval); err != nil {
		return fmt.Errorf("%w: decoder.flow.cleanup_interval: %v", core.ErrConfigInvalid, err)
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
