//go:build linux

package tundevice

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/yllada/vpn-bridge/common"
)

// mainTable is the kernel's main routing table.
const mainTable = unix.RT_TABLE_MAIN

type linuxPlatform struct {
	opts Options
}

// NewPlatform returns the Linux tunnel platform.
func NewPlatform(opts Options) Platform {
	if opts.Name == "" {
		opts.Name = common.DefaultTunnelName
	}
	if opts.FwMark == 0 {
		opts.FwMark = common.DefaultFwMark
	}
	if opts.RouteTable == 0 {
		opts.RouteTable = common.DefaultRouteTable
	}
	return &linuxPlatform{opts: opts}
}

func (p *linuxPlatform) NewBuilder() (Builder, error) {
	return &linuxBuilder{opts: p.opts, blocking: true}, nil
}

// Bypass sets the firewall mark on fd. The inverted fwmark rule installed
// by Establish sends marked sockets to the main table.
func (p *linuxPlatform) Bypass(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(p.opts.FwMark)); err != nil {
		return classify(fmt.Errorf("set SO_MARK: %w", err))
	}
	return nil
}

// linuxBuilder records the configuration and applies it in Establish, since
// routes can only be added once the link exists and is up.
type linuxBuilder struct {
	opts      Options
	addresses []netip.Prefix
	dns       []netip.Addr
	routes    []netip.Prefix
	mtu       int
	blocking  bool
	done      bool
}

func (b *linuxBuilder) AddAddress(prefix netip.Prefix) error {
	b.addresses = append(b.addresses, prefix)
	return nil
}

func (b *linuxBuilder) AddDNSServer(addr netip.Addr) error {
	b.dns = append(b.dns, addr)
	return nil
}

func (b *linuxBuilder) AddRoute(prefix netip.Prefix) error {
	b.routes = append(b.routes, prefix)
	return nil
}

func (b *linuxBuilder) SetMTU(mtu int) error {
	b.mtu = mtu
	return nil
}

func (b *linuxBuilder) SetBlocking(blocking bool) error {
	b.blocking = blocking
	return nil
}

func (b *linuxBuilder) Establish() (*Device, error) {
	if b.done {
		return nil, fmt.Errorf("%w: builder already established", common.ErrDeviceUnavailable)
	}
	b.done = true

	tun := &netlink.Tuntap{
		LinkAttrs:  netlink.LinkAttrs{Name: b.opts.Name},
		Mode:       netlink.TUNTAP_MODE_TUN,
		Flags:      netlink.TUNTAP_NO_PI,
		Queues:     1,
		NonPersist: true,
	}
	if err := netlink.LinkAdd(tun); err != nil {
		return nil, classify(fmt.Errorf("create tun %s: %w", b.opts.Name, err))
	}
	file := tun.Fds[0]

	t := &teardown{name: tun.Name, dns: b.opts.DNS}
	fail := func(err error) (*Device, error) {
		file.Close()
		t.run()
		return nil, classify(err)
	}

	link, err := netlink.LinkByName(tun.Name)
	if err != nil {
		return fail(fmt.Errorf("lookup %s: %w", tun.Name, err))
	}
	t.index = link.Attrs().Index

	if b.mtu > 0 {
		if err := netlink.LinkSetMTU(link, b.mtu); err != nil {
			return fail(fmt.Errorf("set mtu %d: %w", b.mtu, err))
		}
	}
	for _, prefix := range b.addresses {
		if err := netlink.AddrAdd(link, &netlink.Addr{IPNet: toIPNet(prefix)}); err != nil {
			return fail(fmt.Errorf("add address %s: %w", prefix, err))
		}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fail(fmt.Errorf("set %s up: %w", tun.Name, err))
	}

	for _, prefix := range b.routes {
		route := &netlink.Route{
			LinkIndex: t.index,
			Dst:       toIPNet(prefix),
			Table:     b.opts.RouteTable,
			Scope:     netlink.SCOPE_LINK,
		}
		if err := netlink.RouteAdd(route); err != nil {
			return fail(fmt.Errorf("add route %s: %w", prefix, err))
		}
	}

	rules := policyRules(b.opts.FwMark, b.opts.RouteTable, routeFamilies(b.routes))
	t.rules, err = installRules(rules, netlink.RuleAdd)
	if err != nil {
		return fail(err)
	}

	if len(b.dns) > 0 && b.opts.DNS != nil {
		if err := b.opts.DNS.SetLinkDNS(t.index, b.dns); err != nil {
			common.LogWarn("Could not configure DNS on %s: %v", tun.Name, err)
		} else {
			t.dnsSet = true
		}
	}

	if err := setBlocking(file, b.blocking); err != nil {
		return fail(err)
	}

	return NewDevice(tun.Name, file, t.run), nil
}

// installRules adds each rule and returns the ones it created. Rules that
// already existed belong to someone else and are left out, so teardown
// does not remove them.
func installRules(rules []*netlink.Rule, add func(*netlink.Rule) error) ([]*netlink.Rule, error) {
	var created []*netlink.Rule
	for _, rule := range rules {
		err := add(rule)
		switch {
		case err == nil:
			created = append(created, rule)
		case errors.Is(err, unix.EEXIST):
			common.LogDebug("Rule %s already present", rule)
		default:
			return created, fmt.Errorf("add rule %s: %w", rule, err)
		}
	}
	return created, nil
}

// teardown undoes host configuration made for one device.
type teardown struct {
	once   sync.Once
	name   string
	index  int
	rules  []*netlink.Rule
	dns    DNSConfigurator
	dnsSet bool
}

func (t *teardown) run() error {
	var errs []error
	t.once.Do(func() {
		if t.dnsSet {
			if err := t.dns.RevertLink(t.index); err != nil {
				errs = append(errs, err)
			}
		}
		for _, rule := range t.rules {
			if err := netlink.RuleDel(rule); err != nil && !errors.Is(err, unix.ENOENT) {
				errs = append(errs, fmt.Errorf("delete rule %s: %w", rule, err))
			}
		}
		// Non-persistent devices vanish with their last descriptor; this
		// covers the case where the descriptor was detached.
		if link, err := netlink.LinkByName(t.name); err == nil {
			_ = netlink.LinkDel(link)
		}
	})
	return errors.Join(errs...)
}

// policyRules returns, per address family, the rules sending unmarked
// traffic to table and keeping the main table for everything but its
// default route.
func policyRules(fwmark uint32, table int, families []int) []*netlink.Rule {
	var rules []*netlink.Rule
	for _, family := range families {
		notMarked := netlink.NewRule()
		notMarked.Family = family
		notMarked.Mark = fwmark
		notMarked.Invert = true
		notMarked.Table = table
		rules = append(rules, notMarked)

		suppress := netlink.NewRule()
		suppress.Family = family
		suppress.Table = mainTable
		suppress.SuppressPrefixlen = 0
		rules = append(rules, suppress)
	}
	return rules
}

// routeFamilies returns the address families present in routes, IPv4 first.
func routeFamilies(routes []netip.Prefix) []int {
	var v4, v6 bool
	for _, r := range routes {
		if r.Addr().Is4() {
			v4 = true
		} else {
			v6 = true
		}
	}
	var families []int
	if v4 {
		families = append(families, netlink.FAMILY_V4)
	}
	if v6 {
		families = append(families, netlink.FAMILY_V6)
	}
	return families
}

func toIPNet(p netip.Prefix) *net.IPNet {
	addr := p.Addr()
	return &net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(p.Bits(), addr.BitLen()),
	}
}

func setBlocking(file *os.File, blocking bool) error {
	rc, err := file.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), !blocking)
	}); err != nil {
		return err
	}
	return serr
}

// classify maps host errors onto the sentinels CreateInterface inspects.
// netlink formats ioctl errnos with %v, so the message is checked too.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrPermissionDenied) || errors.Is(err, common.ErrDeviceUnavailable) {
		return err
	}
	msg := err.Error()
	if errors.Is(err, os.ErrPermission) ||
		strings.Contains(msg, unix.EPERM.Error()) ||
		strings.Contains(msg, unix.EACCES.Error()) {
		return fmt.Errorf("%w: %v", common.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", common.ErrDeviceUnavailable, err)
}
