package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/common"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, common.StorageSQLite, cfg.Storage.Backend)
	assert.False(t, cfg.Storage.RetainEndpoint)
	assert.Equal(t, common.MonitorNetworkManager, cfg.Connectivity.Monitor)
	assert.True(t, cfg.Connectivity.ProtectProbes)
	assert.Equal(t, common.DefaultMTU, cfg.Tunnel.MTU)
	assert.Equal(t, []string{"0.0.0.0/0", "::/0"}, cfg.Tunnel.Routes)
	assert.Equal(t, common.DefaultAPIAddress, cfg.API.Listen)
	require.NoError(t, cfg.Validate())
}

func TestLoadFrom_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
storage:
  backend: keyring
  retain_endpoint: true
connectivity:
  monitor: probe
  probe_interval: 10s
  probe_hosts: ["9.9.9.9:443"]
tunnel:
  mtu: 1420
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, common.StorageKeyring, cfg.Storage.Backend)
	assert.True(t, cfg.Storage.RetainEndpoint)
	assert.Equal(t, common.MonitorProbe, cfg.Connectivity.Monitor)
	assert.Equal(t, 10*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, []string{"9.9.9.9:443"}, cfg.Connectivity.ProbeHosts)
	assert.Equal(t, 1420, cfg.Tunnel.MTU)
	// untouched sections keep their defaults
	assert.Equal(t, common.DefaultTunnelName, cfg.Tunnel.Name)
	assert.Equal(t, common.ProbeTimeout, cfg.Connectivity.ProbeTimeout)
}

func TestLoadFrom_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[storage]
backend = "sqlite"
path = "/tmp/state.db"

[connectivity]
probe_timeout = "2s"

[api]
listen = "127.0.0.1:9999"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/state.db", cfg.Storage.Path)
	assert.Equal(t, 2*time.Second, cfg.Connectivity.ProbeTimeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.API.Listen)
}

func TestLoadFrom_RejectsUnknownFields(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", "tunnel:\n  colour: red\n"},
		{"toml", "config.toml", "[tunnel]\ncolour = \"red\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := LoadFrom(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrConfigLoad))
		})
	}
}

func TestLoadFrom_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:   "unknown backend falls back",
			mutate: func(c *Config) { c.Storage.Backend = "etcd" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, common.StorageSQLite, c.Storage.Backend)
			},
		},
		{
			name:   "unknown log format falls back",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, common.LogFormatAuto, c.Log.Format)
			},
		},
		{
			name:    "mtu too small",
			mutate:  func(c *Config) { c.Tunnel.MTU = 100 },
			wantErr: true,
		},
		{
			name:    "mtu too large",
			mutate:  func(c *Config) { c.Tunnel.MTU = 70000 },
			wantErr: true,
		},
		{
			name:    "no addresses",
			mutate:  func(c *Config) { c.Tunnel.Addresses = nil },
			wantErr: true,
		},
		{
			name:    "bad route",
			mutate:  func(c *Config) { c.Tunnel.Routes = []string{"10.0.0.0/99"} },
			wantErr: true,
		},
		{
			name:    "bad dns server",
			mutate:  func(c *Config) { c.Tunnel.DNSServers = []string{"resolver"} },
			wantErr: true,
		},
		{
			name: "probe monitor without hosts",
			mutate: func(c *Config) {
				c.Connectivity.Monitor = common.MonitorProbe
				c.Connectivity.ProbeHosts = nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Tunnel.MTU = 1500
			cfg.Storage.RetainEndpoint = true

			require.NoError(t, cfg.SaveTo(path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := LoadFrom(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoad_CreatesDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.True(t, common.FileExists(path))
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Log.MaxSizeMB = 2

	lc := cfg.LoggerConfig()
	assert.Equal(t, common.LevelWarn, lc.Level)
	assert.Equal(t, int64(2*1024*1024), lc.MaxFileSize)
}
