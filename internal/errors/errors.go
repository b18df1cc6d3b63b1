// Package errors provides structured error handling for netreach operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"

	// Network and scanning errors.
	CodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"
	CodeHostUnreachable    ErrorCode = "HOST_UNREACHABLE"
	CodeScanFailed         ErrorCode = "SCAN_FAILED"
	CodeDiscoveryFailed    ErrorCode = "DISCOVERY_FAILED"
	CodeTargetInvalid      ErrorCode = "TARGET_INVALID"
	CodeTargetResolution   ErrorCode = "TARGET_RESOLUTION"
	CodePortInvalid        ErrorCode = "PORT_INVALID"

	// Output errors.
	CodeSerialization ErrorCode = "SERIALIZATION"
	CodeFileWrite     ErrorCode = "FILE_WRITE"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// TargetError represents a target specifier that could not be resolved
// into addresses. It is tied to the specifier, not to an individual probe.
type TargetError struct {
	Code      ErrorCode
	Message   string
	Specifier string
	Cause     error
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	if e.Specifier != "" {
		return fmt.Sprintf("[%s] %s (specifier: %s)", e.Code, e.Message, e.Specifier)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TargetError) Unwrap() error {
	return e.Cause
}

// NewTargetError creates a new target error for a specifier.
func NewTargetError(code ErrorCode, message, specifier string) *TargetError {
	return &TargetError{
		Code:      code,
		Message:   message,
		Specifier: specifier,
	}
}

// WrapTargetError wraps an existing error as a target error.
func WrapTargetError(code ErrorCode, message, specifier string, err error) *TargetError {
	return &TargetError{
		Code:      code,
		Message:   message,
		Specifier: specifier,
		Cause:     err,
	}
}

// DiscoveryError represents network discovery errors.
type DiscoveryError struct {
	Code    ErrorCode
	Message string
	Network string
	Method  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Network != "" {
		return fmt.Sprintf("[%s] %s (network: %s)", e.Code, e.Message, e.Network)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// NewDiscoveryError creates a new discovery error.
func NewDiscoveryError(code ErrorCode, message string) *DiscoveryError {
	return &DiscoveryError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapDiscoveryError wraps an existing error as a discovery error.
func WrapDiscoveryError(code ErrorCode, message string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// OutputError represents report serialization and writing errors.
type OutputError struct {
	Code    ErrorCode
	Message string
	Format  string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *OutputError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("[%s] %s (format: %s)", e.Code, e.Message, e.Format)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *OutputError) Unwrap() error {
	return e.Cause
}

// WrapOutputError wraps an existing error as an output error.
func WrapOutputError(code ErrorCode, message, format string, err error) *OutputError {
	return &OutputError{
		Code:    code,
		Message: message,
		Format:  format,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case *ScanError:
		return e.Code == code
	case *TargetError:
		return e.Code == code
	case *DiscoveryError:
		return e.Code == code
	case *ConfigError:
		return e.Code == code
	case *OutputError:
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ScanError:
		return e.Code
	case *TargetError:
		return e.Code
	case *DiscoveryError:
		return e.Code
	case *ConfigError:
		return e.Code
	case *OutputError:
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	code := GetCode(err)
	switch code {
	case CodeTimeout, CodeNetworkUnreachable, CodeHostUnreachable:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a fatal condition that should stop execution.
func IsFatal(err error) bool {
	code := GetCode(err)
	switch code {
	case CodePermission, CodeConfiguration, CodeSerialization:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid target specifiers.
func ErrInvalidTarget(specifier string) *TargetError {
	return NewTargetError(CodeTargetInvalid, "Invalid target specification", specifier)
}

// ErrTargetResolution creates an error for failed hostname resolution.
func ErrTargetResolution(specifier string, err error) *TargetError {
	return WrapTargetError(CodeTargetResolution, "Failed to resolve target", specifier, err)
}

// ErrProbeTimeout creates an error for probe timeouts.
func ErrProbeTimeout(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTimeout, "Probe timed out", target)
}

// ErrPermission creates an error for insufficient probe privileges.
func ErrPermission(operation string) *ScanError {
	e := NewScanError(CodePermission, "Insufficient privileges for raw socket operation")
	e.Operation = operation
	return e
}

// ErrNetworkUnreachable creates an error for unreachable networks.
func ErrNetworkUnreachable(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeNetworkUnreachable, "Network is unreachable", target, err)
}

// ErrDiscoveryFailed creates an error for discovery failures.
func ErrDiscoveryFailed(network string, err error) *DiscoveryError {
	de := WrapDiscoveryError(CodeDiscoveryFailed, "Network discovery failed", err)
	de.Network = network
	return de
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrSerialization creates an error for report serialization failures.
func ErrSerialization(format string, err error) *OutputError {
	return WrapOutputError(CodeSerialization, "Failed to serialize scan report", format, err)
}
