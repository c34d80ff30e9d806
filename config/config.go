// Package config provides configuration management for the VPN bridge.
// It handles loading, validating and saving the daemon settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/yllada/vpn-bridge/common"
)

// Config represents the daemon configuration.
// Settings are persisted to a YAML file in the user's config directory;
// files ending in .toml are read and written as TOML instead.
type Config struct {
	Log          LogConfig          `yaml:"log" toml:"log"`
	Storage      StorageConfig      `yaml:"storage" toml:"storage"`
	Connectivity ConnectivityConfig `yaml:"connectivity" toml:"connectivity"`
	Tunnel       TunnelConfig       `yaml:"tunnel" toml:"tunnel"`
	API          APIConfig          `yaml:"api" toml:"api"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `yaml:"level" toml:"level"`
	// Format is "auto", "text" or "json".
	Format string `yaml:"format" toml:"format"`
	// File enables the rotating log file next to stdout.
	File bool `yaml:"file" toml:"file"`
	// MaxSizeMB is the size in megabytes at which the log file rotates.
	MaxSizeMB int `yaml:"max_size_mb" toml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups" toml:"max_backups"`
}

// StorageConfig selects where the tunnel state is persisted.
type StorageConfig struct {
	// Backend is "sqlite" or "keyring".
	Backend string `yaml:"backend" toml:"backend"`
	// Path is the sqlite database file. Empty means the data directory.
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
	// RetainEndpoint keeps the relay endpoint in the persisted state.
	// When false the endpoint is replaced by a placeholder.
	RetainEndpoint bool `yaml:"retain_endpoint" toml:"retain_endpoint"`
}

// ConnectivityConfig selects the system connectivity monitor.
type ConnectivityConfig struct {
	// Monitor is "networkmanager" or "probe".
	Monitor string `yaml:"monitor" toml:"monitor"`
	// ProbeInterval is how often the probing monitor dials its hosts.
	ProbeInterval time.Duration `yaml:"probe_interval" toml:"probe_interval"`
	// ProbeTimeout bounds a single dial.
	ProbeTimeout time.Duration `yaml:"probe_timeout" toml:"probe_timeout"`
	// ProbeHosts are host:port pairs dialed over TCP.
	ProbeHosts []string `yaml:"probe_hosts" toml:"probe_hosts"`
	// ProtectProbes marks probe sockets so they bypass the tunnel. Needs
	// CAP_NET_ADMIN.
	ProtectProbes bool `yaml:"protect_probes" toml:"protect_probes"`
}

// TunnelConfig holds the parameters of the tunnel interface.
type TunnelConfig struct {
	Name       string   `yaml:"name" toml:"name"`
	MTU        int      `yaml:"mtu" toml:"mtu"`
	FwMark     uint32   `yaml:"fwmark" toml:"fwmark"`
	RouteTable int      `yaml:"route_table" toml:"route_table"`
	Addresses  []string `yaml:"addresses" toml:"addresses"`
	DNSServers []string `yaml:"dns_servers,omitempty" toml:"dns_servers,omitempty"`
	Routes     []string `yaml:"routes" toml:"routes"`
}

// APIConfig configures the local status API.
type APIConfig struct {
	// Listen is the host:port the API binds. Empty disables the API.
	Listen string `yaml:"listen" toml:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     common.LogFormatAuto,
			File:       false,
			MaxSizeMB:  5,
			MaxBackups: 5,
		},
		Storage: StorageConfig{
			Backend:        common.StorageSQLite,
			RetainEndpoint: false,
		},
		Connectivity: ConnectivityConfig{
			Monitor:       common.MonitorNetworkManager,
			ProbeInterval: common.ProbeInterval,
			ProbeTimeout:  common.ProbeTimeout,
			ProbeHosts:    []string{"1.1.1.1:443", "8.8.8.8:443"},
			ProtectProbes: true,
		},
		Tunnel: TunnelConfig{
			Name:       common.DefaultTunnelName,
			MTU:        common.DefaultMTU,
			FwMark:     common.DefaultFwMark,
			RouteTable: common.DefaultRouteTable,
			Addresses:  []string{"10.0.0.1"},
			Routes:     []string{"0.0.0.0/0", "::/0"},
		},
		API: APIConfig{
			Listen: common.DefaultAPIAddress,
		},
	}
}

// Load loads the configuration from the default config file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.SaveTo(configPath); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	return LoadFrom(configPath)
}

// LoadFrom loads the configuration at path. Missing keys keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	config := DefaultConfig()
	if isTOML(path) {
		md, err := toml.Decode(string(data), config)
		if err != nil {
			return nil, fmt.Errorf("%w: error parsing configuration: %v", common.ErrConfigLoad, err)
		}
		// Strict validation: reject unknown fields
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown field %q", common.ErrConfigLoad, undecoded[0].String())
		}
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Strict validation: reject unknown fields
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: error parsing configuration: %v", common.ErrConfigLoad, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate verifies that configuration values are valid. Unknown enum values
// fall back to their defaults; values that cannot work are rejected.
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	switch c.Log.Format {
	case common.LogFormatAuto, common.LogFormatText, common.LogFormatJSON:
	default:
		c.Log.Format = defaults.Log.Format
	}
	switch c.Storage.Backend {
	case common.StorageSQLite, common.StorageKeyring:
	default:
		c.Storage.Backend = defaults.Storage.Backend
	}
	switch c.Connectivity.Monitor {
	case common.MonitorNetworkManager, common.MonitorProbe:
	default:
		c.Connectivity.Monitor = defaults.Connectivity.Monitor
	}

	if c.Connectivity.ProbeInterval <= 0 {
		c.Connectivity.ProbeInterval = defaults.Connectivity.ProbeInterval
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		c.Connectivity.ProbeTimeout = defaults.Connectivity.ProbeTimeout
	}
	if c.Connectivity.Monitor == common.MonitorProbe && len(c.Connectivity.ProbeHosts) == 0 {
		return fmt.Errorf("%w: probe monitor needs at least one probe host", common.ErrInvalidConfig)
	}

	if c.Tunnel.Name == "" {
		c.Tunnel.Name = defaults.Tunnel.Name
	}
	if c.Tunnel.MTU < common.MinMTU || c.Tunnel.MTU > common.MaxMTU {
		return fmt.Errorf("%w: mtu %d outside [%d, %d]", common.ErrInvalidConfig,
			c.Tunnel.MTU, common.MinMTU, common.MaxMTU)
	}
	if len(c.Tunnel.Addresses) == 0 {
		return fmt.Errorf("%w: tunnel needs at least one address", common.ErrInvalidConfig)
	}
	for _, a := range append(append([]string{}, c.Tunnel.Addresses...), c.Tunnel.DNSServers...) {
		if _, err := netip.ParseAddr(a); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
		}
	}
	for _, r := range c.Tunnel.Routes {
		if _, err := netip.ParsePrefix(r); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
		}
	}
	return nil
}

// Save saves the configuration to the default config file.
func (c *Config) Save() error {
	configPath, err := DefaultPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to path, in TOML when path ends in .toml.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: error creating config directory: %v", common.ErrConfigSave, err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("%w: error serializing configuration: %v", common.ErrConfigSave, err)
		}
		data = buf.Bytes()
	} else {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("%w: error serializing configuration: %v", common.ErrConfigSave, err)
		}
		data = out
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	return nil
}

// LoggerConfig converts the log section into the logger's options.
func (c *Config) LoggerConfig() common.LogConfig {
	return common.LogConfig{
		Level:       common.ParseLogLevel(c.Log.Level),
		Format:      c.Log.Format,
		EnableFile:  c.Log.File,
		MaxFileSize: int64(c.Log.MaxSizeMB) * 1024 * 1024,
		MaxBackups:  c.Log.MaxBackups,
	}
}

// DefaultPath returns the path of the default config file, creating its
// directory if needed.
func DefaultPath() (string, error) {
	dir, err := common.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.ConfigFileName), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
