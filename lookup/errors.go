package lookup

import (
	"errors"
	"fmt"
	"strings"
)

// DependencyError means no NetBox client is available to the lookup. It is
// returned before any configuration is read or any request is made.
type DependencyError struct {
	Reason string
}

func (e *DependencyError) Error() string {
	if e.Reason == "" {
		return "netbox_secrets: required client library is not installed"
	}
	return "netbox_secrets: required client library is not installed: " + e.Reason
}

// Is will return true if the target is a DependencyError.
func (e *DependencyError) Is(target error) bool {
	_, ok := target.(*DependencyError)
	return ok
}

// ConfigurationError means the options cannot be used. Either Missing holds
// the required options that resolved to an empty value, in schema order, or
// Invalid names an option whose value was rejected with Err.
type ConfigurationError struct {
	Missing []string

	Invalid string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Invalid != "" {
		return fmt.Sprintf("netbox_secrets: invalid option %s: %v", e.Invalid, e.Err)
	}

	parts := make([]string, 0, len(e.Missing))
	for _, name := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (set --%s or %s)", name, FlagName(name), EnvVarName(name)))
	}
	return "netbox_secrets: missing required options: " + strings.Join(parts, ", ")
}

// Unwrap returns the error an invalid option was rejected with.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is will return true if the target is a ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// RemoteError wraps anything the NetBox client returned. Op is the step that
// failed: "session" or "query".
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("netbox_secrets: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cerr *ConfigurationError
	return errors.As(err, &cerr)
}

// IsDependencyError reports whether err is, or wraps, a DependencyError.
func IsDependencyError(err error) bool {
	var derr *DependencyError
	return errors.As(err, &derr)
}
