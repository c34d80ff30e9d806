package tundevice

import (
	"fmt"
	"net/netip"

	"github.com/yllada/vpn-bridge/common"
)

// Config is the configuration of a tunnel interface. Order is preserved
// when it is applied.
type Config struct {
	Addresses  []netip.Addr
	DNSServers []netip.Addr
	Routes     []netip.Prefix
	MTU        int
}

// DefaultConfig returns the initial configuration capturing all traffic,
// used before the engine pushes its own.
func DefaultConfig() Config {
	return Config{
		Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.1")},
		Routes: []netip.Prefix{
			netip.MustParsePrefix("0.0.0.0/0"),
			netip.MustParsePrefix("::/0"),
		},
		MTU: common.DefaultMTU,
	}
}

// ParseConfig builds a Config from textual addresses, DNS servers and routes.
func ParseConfig(addresses, dnsServers, routes []string, mtu int) (Config, error) {
	cfg := Config{MTU: mtu}
	for _, s := range addresses {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: address: %v", common.ErrInvalidConfig, err)
		}
		cfg.Addresses = append(cfg.Addresses, a)
	}
	for _, s := range dnsServers {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: dns server: %v", common.ErrInvalidConfig, err)
		}
		cfg.DNSServers = append(cfg.DNSServers, a)
	}
	for _, s := range routes {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: route: %v", common.ErrInvalidConfig, err)
		}
		cfg.Routes = append(cfg.Routes, p)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations no platform can apply.
func (c Config) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("%w: no addresses", common.ErrInvalidConfig)
	}
	if c.MTU < common.MinMTU || c.MTU > common.MaxMTU {
		return fmt.Errorf("%w: mtu %d outside [%d, %d]", common.ErrInvalidConfig, c.MTU, common.MinMTU, common.MaxMTU)
	}
	for _, a := range append(append([]netip.Addr{}, c.Addresses...), c.DNSServers...) {
		if !a.IsValid() {
			return fmt.Errorf("%w: invalid address", common.ErrInvalidConfig)
		}
	}
	for _, r := range c.Routes {
		if !r.IsValid() {
			return fmt.Errorf("%w: invalid route", common.ErrInvalidConfig)
		}
	}
	return nil
}

// hostPrefix returns addr as a single-host prefix. IPv4-mapped IPv6
// addresses are treated as IPv4.
func hostPrefix(addr netip.Addr) netip.Prefix {
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen())
}
