// Package common provides shared constants, types, and utilities
// used across the VPN bridge.
package common

import "time"

// Application metadata.
const (
	// AppID is the unique identifier for the application.
	AppID = "com.vpnbridge.daemon"
	// AppName is the display name of the application.
	AppName = "VPN Bridge"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "vpn-bridge"
)

// File names used by the application.
const (
	ConfigFileName = "config.yaml"
	StateFileName  = "state.db"
	SecretFileName = ".state"
	LogFileName    = "vpn-bridge.log"
)

// TunnelStateKey is the storage key holding the serialized tunnel state.
const TunnelStateKey = "tunnel_state"

// Tunnel interface defaults.
const (
	// DefaultTunnelName is the interface name requested from the platform.
	DefaultTunnelName = "wg-bridge"
	// DefaultMTU matches the MTU the engine expects before it pushes its own config.
	DefaultMTU = 1380
	// MinMTU is the smallest MTU every IPv4 host must accept.
	MinMTU = 576
	// MaxMTU is the largest MTU a TUN device accepts.
	MaxMTU = 65535
	// DefaultFwMark marks sockets that must bypass the tunnel ("mole").
	DefaultFwMark = 0x6d6f6c65
	// DefaultRouteTable is the policy routing table holding tunnel routes.
	DefaultRouteTable = 0x6d6f6c65
)

// Default timeouts and intervals.
const (
	// ProbeInterval is how often the probing monitor checks reachability.
	ProbeInterval = 30 * time.Second
	// ProbeTimeout bounds a single reachability probe.
	ProbeTimeout = 5 * time.Second
	// WatchInterval is how often the terminal viewer polls the API.
	WatchInterval = 1 * time.Second
	// ShutdownTimeout bounds graceful shutdown of the API server.
	ShutdownTimeout = 5 * time.Second
)

// Storage backends.
const (
	StorageSQLite  = "sqlite"
	StorageKeyring = "keyring"
)

// Connectivity monitors.
const (
	MonitorNetworkManager = "networkmanager"
	MonitorProbe          = "probe"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultAPIAddress is the loopback address of the local status API.
const DefaultAPIAddress = "127.0.0.1:8788"
