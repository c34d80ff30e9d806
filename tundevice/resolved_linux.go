//go:build linux

package tundevice

import (
	"fmt"
	"net/netip"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	resolvedDest      = "org.freedesktop.resolve1"
	resolvedPath      = dbus.ObjectPath("/org/freedesktop/resolve1")
	resolvedInterface = "org.freedesktop.resolve1.Manager"
)

// resolvedAddress is the (iay) struct SetLinkDNS expects.
type resolvedAddress struct {
	Family  int32
	Address []byte
}

// resolvedDomain is the (sb) struct SetLinkDomains expects.
type resolvedDomain struct {
	Domain      string
	RoutingOnly bool
}

// ResolvedDNS configures per-link DNS through systemd-resolved.
type ResolvedDNS struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewResolvedDNS connects to systemd-resolved on the system bus.
func NewResolvedDNS() (*ResolvedDNS, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &ResolvedDNS{conn: conn, obj: conn.Object(resolvedDest, resolvedPath)}, nil
}

// SetLinkDNS sets the DNS servers of ifindex and routes every lookup to them.
func (r *ResolvedDNS) SetLinkDNS(ifindex int, servers []netip.Addr) error {
	addrs := make([]resolvedAddress, 0, len(servers))
	for _, s := range servers {
		family := int32(unix.AF_INET)
		if s.Is6() && !s.Is4In6() {
			family = unix.AF_INET6
		}
		addrs = append(addrs, resolvedAddress{Family: family, Address: s.Unmap().AsSlice()})
	}

	if err := r.obj.Call(resolvedInterface+".SetLinkDNS", 0, int32(ifindex), addrs).Err; err != nil {
		return fmt.Errorf("SetLinkDNS: %w", err)
	}
	// "~." makes the link the route for all domains.
	domains := []resolvedDomain{{Domain: ".", RoutingOnly: true}}
	if err := r.obj.Call(resolvedInterface+".SetLinkDomains", 0, int32(ifindex), domains).Err; err != nil {
		return fmt.Errorf("SetLinkDomains: %w", err)
	}
	return nil
}

// RevertLink drops the DNS configuration of ifindex.
func (r *ResolvedDNS) RevertLink(ifindex int) error {
	if err := r.obj.Call(resolvedInterface+".RevertLink", 0, int32(ifindex)).Err; err != nil {
		return fmt.Errorf("RevertLink: %w", err)
	}
	return nil
}

// Close closes the bus connection.
func (r *ResolvedDNS) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
