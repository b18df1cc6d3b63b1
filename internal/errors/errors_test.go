package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanErrorFormatting(t *testing.T) {
	err := NewScanError(CodeScanFailed, "probe dispatch failed")
	assert.Equal(t, "[SCAN_FAILED] probe dispatch failed", err.Error())

	withTarget := NewScanErrorWithTarget(CodeTimeout, "probe timed out", "10.0.0.1:443")
	assert.Equal(t, "[TIMEOUT] probe timed out (target: 10.0.0.1:443)", withTarget.Error())
}

func TestScanErrorUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := WrapScanError(CodeScanFailed, "probe failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestScanErrorWithContext(t *testing.T) {
	err := NewScanError(CodeTimeout, "slow target").
		WithContext("port", 443).
		WithContext("protocol", "tcp")

	assert.Equal(t, 443, err.Context["port"])
	assert.Equal(t, "tcp", err.Context["protocol"])
}

func TestTargetErrorFormatting(t *testing.T) {
	err := NewTargetError(CodeTargetInvalid, "unparseable specifier", "10.0.0.300/24")
	assert.Contains(t, err.Error(), "TARGET_INVALID")
	assert.Contains(t, err.Error(), "10.0.0.300/24")
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"scan error", NewScanError(CodeScanFailed, "x"), CodeScanFailed},
		{"target error", NewTargetError(CodeTargetInvalid, "x", "spec"), CodeTargetInvalid},
		{"discovery error", NewDiscoveryError(CodeDiscoveryFailed, "x"), CodeDiscoveryFailed},
		{"config error", NewConfigError(CodeConfiguration, "x"), CodeConfiguration},
		{"output error", WrapOutputError(CodeSerialization, "x", "json", nil), CodeSerialization},
		{"plain error", stderrors.New("x"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestIsCode(t *testing.T) {
	err := NewScanError(CodePermission, "raw sockets unavailable")
	assert.True(t, IsCode(err, CodePermission))
	assert.False(t, IsCode(err, CodeTimeout))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewScanError(CodeTimeout, "x")))
	assert.True(t, IsRetryable(NewScanError(CodeNetworkUnreachable, "x")))
	assert.True(t, IsRetryable(NewScanError(CodeHostUnreachable, "x")))

	assert.False(t, IsRetryable(NewScanError(CodePermission, "x")))
	assert.False(t, IsRetryable(NewScanError(CodeValidation, "x")))
	assert.False(t, IsRetryable(stderrors.New("x")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewScanError(CodePermission, "x")))
	assert.True(t, IsFatal(NewConfigError(CodeConfiguration, "x")))
	assert.True(t, IsFatal(WrapOutputError(CodeSerialization, "x", "xml", nil)))

	assert.False(t, IsFatal(NewScanError(CodeTimeout, "x")))
	assert.False(t, IsFatal(stderrors.New("x")))
}

func TestConvenienceConstructors(t *testing.T) {
	assert.Equal(t, CodeTargetInvalid, GetCode(ErrInvalidTarget("nonsense")))
	assert.Equal(t, CodeTimeout, GetCode(ErrProbeTimeout("10.0.0.1:80")))
	assert.Equal(t, CodeNetworkUnreachable, GetCode(ErrNetworkUnreachable("10.0.0.1", nil)))
	assert.Equal(t, CodeDiscoveryFailed, GetCode(ErrDiscoveryFailed("10.0.0.0/24", nil)))
	assert.Equal(t, CodeValidation, GetCode(ErrConfigInvalid("ports", "")))
	assert.Equal(t, CodeSerialization, GetCode(ErrSerialization("json", nil)))

	perm := ErrPermission("syn_scan")
	assert.Equal(t, CodePermission, GetCode(perm))
	assert.Equal(t, "syn_scan", perm.Operation)
	assert.True(t, IsFatal(perm))
}

func TestErrTargetResolutionWrapsCause(t *testing.T) {
	cause := stderrors.New("no such host")
	err := ErrTargetResolution("db.internal", cause)

	require.Equal(t, CodeTargetResolution, GetCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "db.internal")
}
