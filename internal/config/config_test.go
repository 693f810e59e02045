package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ipingest/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
ipingest:
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  decoder:
    ipv4:
      max_fragments: 64
      context_ttl: "90s"
      check_checksum: true
    flow:
      cleanup_interval: "5s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 64, cfg.Decoder.IPv4.MaxFragments)
	assert.Equal(t, 90*time.Second, cfg.Decoder.IPv4.ContextTTLDuration())
	assert.True(t, cfg.Decoder.IPv4.CheckChecksum)
	assert.Equal(t, 5*time.Second, cfg.Decoder.Flow.CleanupIntervalDuration())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ipingest: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Log.Outputs.File.Enabled)
	assert.Equal(t, 100, cfg.Log.Outputs.File.Rotation.MaxSizeMB)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 50, cfg.Decoder.IPv4.MaxFragments)
	assert.Equal(t, core.DefaultContextTTL, cfg.Decoder.IPv4.ContextTTLDuration())
	assert.False(t, cfg.Decoder.IPv4.CheckChecksum)
	assert.Equal(t, 30*time.Second, cfg.Decoder.Flow.CleanupIntervalDuration())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Decoder.IPv4.MaxFragments)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IPINGEST_LOG_LEVEL", "warn")
	t.Setenv("IPINGEST_DECODER_IPV4_MAX_FRAGMENTS", "8")

	cfg, err := Load(writeConfig(t, "ipingest:\n  log:\n    level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Decoder.IPv4.MaxFragments)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"LogLevel", "ipingest:\n  log:\n    level: loud\n"},
		{"LogFormat", "ipingest:\n  log:\n    format: xml\n"},
		{"MaxFragments", "ipingest:\n  decoder:\n    ipv4:\n      max_fragments: 0\n"},
		{"ContextTTL", "ipingest:\n  decoder:\n    ipv4:\n      context_ttl: soon\n"},
		{"NegativeTTL", "ipingest:\n  decoder:\n    ipv4:\n      context_ttl: -5s\n"},
		{"CleanupInterval", "ipingest:\n  decoder:\n    flow:\n      cleanup_interval: often\n"},
		{"MetricsListen", "ipingest:\n  metrics:\n    enabled: true\n    listen: \"\"\n"},
		{"FilePath", "ipingest:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}
