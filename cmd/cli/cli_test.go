package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandStructure(t *testing.T) {
	assert.Equal(t, "netreach", rootCmd.Use)

	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["scan"], "scan command should be registered")
	assert.True(t, names["discover"], "discover command should be registered")
}

func TestSetVersion(t *testing.T) {
	defer SetVersion("dev", "none", "unknown")

	SetVersion("1.2.3", "abc123", "2026-01-01")
	assert.Contains(t, rootCmd.Version, "1.2.3")
	assert.Contains(t, rootCmd.Version, "abc123")
}

func TestCollectTargets(t *testing.T) {
	tests := []struct {
		name string
		args []string
		flag string
		want []string
	}{
		{"arguments only", []string{"10.0.0.1", "example.com"}, "", []string{"10.0.0.1", "example.com"}},
		{"flag only", nil, "10.0.0.1,10.0.0.2", []string{"10.0.0.1", "10.0.0.2"}},
		{"arguments and flag", []string{"10.0.0.1"}, "10.0.0.2", []string{"10.0.0.1", "10.0.0.2"}},
		{"whitespace trimmed", []string{" 10.0.0.1 "}, " 10.0.0.2 , ", []string{"10.0.0.1", "10.0.0.2"}},
		{"empty", nil, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collectTargets(tt.args, tt.flag))
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestScanRequiresTargets(t *testing.T) {
	err := runScan(scanCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no targets")
}

func TestScanCommandFlags(t *testing.T) {
	for _, name := range []string{
		"targets", "ports", "udp-ports", "type", "timeout", "max-parallel",
		"retries", "randomize", "rate-limit", "detect-services", "detect-os",
		"skip-down", "discovery-method", "output", "format",
	} {
		assert.NotNil(t, scanCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}

func TestDiscoverCommandFlags(t *testing.T) {
	for _, name := range []string{"targets", "method", "timeout", "max-parallel", "show-down"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}
