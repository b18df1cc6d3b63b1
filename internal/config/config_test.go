package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "connect", cfg.Scanning.DefaultScanType)
	assert.Equal(t, 3*time.Second, cfg.Scanning.Timeout)
	assert.Equal(t, 100, cfg.Scanning.MaxParallel)
	assert.Equal(t, "ping", cfg.Discovery.Method)
	assert.Equal(t, "human", cfg.Output.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
scanning:
  default_ports: "1-1024"
  default_scan_type: syn
  timeout: 500ms
  max_parallel: 256
  retries: 2
  randomize: true
discovery:
  method: tcp
logging:
  level: debug
output:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1-1024", cfg.Scanning.DefaultPorts)
	assert.Equal(t, "syn", cfg.Scanning.DefaultScanType)
	assert.Equal(t, 500*time.Millisecond, cfg.Scanning.Timeout)
	assert.Equal(t, 256, cfg.Scanning.MaxParallel)
	assert.Equal(t, 2, cfg.Scanning.Retries)
	assert.True(t, cfg.Scanning.Randomize)
	assert.Equal(t, "tcp", cfg.Discovery.Method)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Output.Format)

	// Sections not mentioned keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad scan type", "scanning:\n  default_scan_type: stealth\n"},
		{"zero timeout", "scanning:\n  timeout: 0s\n"},
		{"excessive parallelism", "scanning:\n  max_parallel: 100000\n"},
		{"negative retries", "scanning:\n  retries: -1\n"},
		{"bad discovery method", "discovery:\n  method: multicast\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad output format", "output:\n  format: yaml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanning: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Default()
	cfg.Scanning.DefaultPorts = "80,443"
	cfg.Output.Format = "csv"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
