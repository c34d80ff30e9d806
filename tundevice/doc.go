// Package tundevice creates the tunnel's virtual network interface and lets
// control-plane sockets bypass it.
//
// A Factory drives a Platform. CreateInterface asks the platform for a
// Builder, feeds it the interface configuration in a fixed order
// (addresses, DNS servers, routes, MTU, non-blocking mode) and establishes
// the device. The result is an Outcome rather than an error: permission
// refusals are distinguished from other failures because they must not be
// retried.
//
// On Linux the platform creates a TUN device over netlink, installs the
// routes in a dedicated policy routing table and exempts sockets carrying a
// firewall mark from that table, the way wg-quick does. DNS servers are
// handed to systemd-resolved when a DNSConfigurator is supplied.
package tundevice
