// Package connectivity tracks whether the host has a usable network and
// relays that signal to the engine.
//
// A Monitor reports networks appearing and disappearing. The Bridge keeps
// the set of networks that provide internet access and are not themselves
// VPNs, and tells the engine through its Boundary each time that set goes
// from empty to non-empty or back.
package connectivity

import "context"

// Network is a system network as reported by a Monitor.
type Network struct {
	// ID identifies the network for the lifetime of the monitor.
	ID string `json:"id"`
	// Name is a human-readable label.
	Name string `json:"name,omitempty"`
	// Internet reports whether the network provides internet access.
	Internet bool `json:"internet"`
	// VPN reports whether the network is itself a VPN.
	VPN bool `json:"vpn"`
}

// usable reports whether n counts towards connectivity.
func (n Network) usable() bool {
	return n.Internet && !n.VPN
}

// Callback receives network transitions. Calls may arrive on any goroutine.
type Callback interface {
	OnAvailable(n Network)
	OnLost(n Network)
}

// Monitor is a source of network transitions.
type Monitor interface {
	// Register starts delivering transitions to cb. Networks already
	// present are reported as available.
	Register(ctx context.Context, cb Callback) error
	// Unregister stops delivery. No callback runs after it returns.
	Unregister() error
}
