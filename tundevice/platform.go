package tundevice

import "net/netip"

// Platform is the host's tunnel API.
type Platform interface {
	// NewBuilder starts the configuration of a new interface.
	NewBuilder() (Builder, error)
	// Bypass exempts the socket fd from the tunnel.
	Bypass(fd int) error
}

// Builder accumulates the configuration of one interface. Establish must be
// called last and at most once.
type Builder interface {
	AddAddress(prefix netip.Prefix) error
	AddDNSServer(addr netip.Addr) error
	AddRoute(prefix netip.Prefix) error
	SetMTU(mtu int) error
	SetBlocking(blocking bool) error
	Establish() (*Device, error)
}

// DNSConfigurator applies per-link DNS servers.
type DNSConfigurator interface {
	SetLinkDNS(ifindex int, servers []netip.Addr) error
	RevertLink(ifindex int) error
}

// Options configures the host platform.
type Options struct {
	// Name is the requested interface name.
	Name string
	// FwMark marks sockets that bypass the tunnel.
	FwMark uint32
	// RouteTable is the policy routing table holding the tunnel routes.
	RouteTable int
	// DNS applies the interface DNS servers. Nil leaves DNS untouched.
	DNS DNSConfigurator
}
