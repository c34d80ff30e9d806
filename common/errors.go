// Package common provides shared constants, types, and utilities
// used across the VPN bridge.
package common

import "errors"

// Sentinel errors for bridge operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Tunnel device errors.
	ErrPermissionDenied    = errors.New("permission denied")
	ErrDeviceUnavailable   = errors.New("tunnel device unavailable")
	ErrInvalidConfig       = errors.New("invalid tunnel configuration")
	ErrUnsupportedPlatform = errors.New("operation not supported on this platform")

	// Connectivity bridge errors.
	ErrAlreadyStarted = errors.New("bridge already started")
	ErrBridgeClosed   = errors.New("bridge already stopped")
	ErrMonitorFailed  = errors.New("failed to register network monitor")

	// Engine boundary errors.
	ErrHandleReleased = errors.New("handle already released")
	ErrUnknownHandle  = errors.New("unknown handle")
	ErrEngineClosed   = errors.New("engine closed")

	// Tunnel state errors.
	ErrInvalidState = errors.New("invalid tunnel state")
	ErrStorage      = errors.New("state storage error")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
