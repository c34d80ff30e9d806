// Package common provides shared constants, types, and utilities
// used across the VPN bridge.
package common

import "context"

// KVStore defines the interface for the persistent string store backing
// the tunnel state. Implementations may use sqlite, the system keyring, etc.
type KVStore interface {
	// Get returns the value stored under key. The boolean is false when
	// nothing was ever stored under that key.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Close releases the underlying storage.
	Close() error
}

