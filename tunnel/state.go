package tunnel

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/yllada/vpn-bridge/common"
)

// Kind is the variant of a tunnel state.
type Kind int

const (
	// Disconnected indicates no tunnel is up. It is the default state.
	Disconnected Kind = iota
	// Connecting indicates the engine is bringing a tunnel up.
	Connecting
	// Connected indicates an established tunnel.
	Connected
	// Disconnecting indicates the tunnel is being torn down.
	Disconnecting
	// Error indicates the engine failed and may be blocking traffic.
	Error
)

var kindNames = [...]string{"disconnected", "connecting", "connected", "disconnecting", "error"}

// String returns the lowercase name used on the wire.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind parses a name produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown state %q", common.ErrInvalidState, s)
}

// TransportProtocol is the transport carrying the tunnel.
type TransportProtocol string

const (
	UDP TransportProtocol = "udp"
	TCP TransportProtocol = "tcp"
)

// TunnelType is the tunnel protocol spoken with the relay.
type TunnelType string

const (
	WireGuard TunnelType = "wireguard"
	OpenVPN   TunnelType = "openvpn"
)

// Endpoint describes the relay a tunnel connects to.
type Endpoint struct {
	Address          netip.AddrPort
	Protocol         TransportProtocol
	TunnelType       TunnelType
	QuantumResistant bool
}

// String formats the endpoint as "addr:port/proto".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%s", e.Address, e.Protocol)
}

// PlaceholderEndpoint stands in for the endpoint of a state restored from a
// store that does not retain endpoints.
func PlaceholderEndpoint() Endpoint {
	return Endpoint{
		Address:    netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
		Protocol:   UDP,
		TunnelType: WireGuard,
	}
}

// Location is the geographic location of the relay.
type Location struct {
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// ActionAfterDisconnect is what the engine does once a disconnect completes.
type ActionAfterDisconnect int

const (
	ActionNothing ActionAfterDisconnect = iota
	ActionBlock
	ActionReconnect
)

var actionNames = [...]string{"nothing", "block", "reconnect"}

// String returns the lowercase name used on the wire.
func (a ActionAfterDisconnect) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// ParseAction parses a name produced by ActionAfterDisconnect.String.
// The empty string is ActionNothing.
func ParseAction(s string) (ActionAfterDisconnect, error) {
	if s == "" {
		return ActionNothing, nil
	}
	for i, name := range actionNames {
		if strings.EqualFold(s, name) {
			return ActionAfterDisconnect(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action after disconnect %q", common.ErrInvalidState, s)
}

// ErrorCause is the reason the engine entered the error state.
type ErrorCause string

const (
	CauseAuthFailed          ErrorCause = "auth_failed"
	CauseIPv6Unavailable     ErrorCause = "ipv6_unavailable"
	CauseSetFirewallPolicy   ErrorCause = "set_firewall_policy_error"
	CauseSetDNS              ErrorCause = "set_dns_error"
	CauseStartTunnel         ErrorCause = "start_tunnel_error"
	CauseTunnelParameter     ErrorCause = "tunnel_parameter_error"
	CauseIsOffline           ErrorCause = "is_offline"
	CauseVPNPermissionDenied ErrorCause = "vpn_permission_denied"
	CauseSplitTunnel         ErrorCause = "split_tunnel_error"
)

var knownCauses = map[ErrorCause]bool{
	CauseAuthFailed:          true,
	CauseIPv6Unavailable:     true,
	CauseSetFirewallPolicy:   true,
	CauseSetDNS:              true,
	CauseStartTunnel:         true,
	CauseTunnelParameter:     true,
	CauseIsOffline:           true,
	CauseVPNPermissionDenied: true,
	CauseSplitTunnel:         true,
}

// State is one tunnel state as published by the engine.
//
// Endpoint and Location are set for Connecting and Connected.
// AfterDisconnect is meaningful for Disconnecting; Cause and Blocking for Error.
type State struct {
	Kind            Kind
	Endpoint        *Endpoint
	Location        *Location
	AfterDisconnect ActionAfterDisconnect
	Cause           ErrorCause
	Blocking        bool
}

// DisconnectedState returns the default state.
func DisconnectedState() State {
	return State{Kind: Disconnected}
}

// ConnectingState returns a Connecting state towards ep. loc may be nil.
func ConnectingState(ep Endpoint, loc *Location) State {
	return State{Kind: Connecting, Endpoint: &ep, Location: loc}
}

// ConnectedState returns a Connected state to ep. loc may be nil.
func ConnectedState(ep Endpoint, loc *Location) State {
	return State{Kind: Connected, Endpoint: &ep, Location: loc}
}

// DisconnectingState returns a Disconnecting state followed by action.
func DisconnectingState(action ActionAfterDisconnect) State {
	return State{Kind: Disconnecting, AfterDisconnect: action}
}

// ErrorState returns an Error state. blocking reports whether the engine
// still blocks traffic.
func ErrorState(cause ErrorCause, blocking bool) State {
	return State{Kind: Error, Cause: cause, Blocking: blocking}
}

// Validate checks that the fields set match the variant.
func (s State) Validate() error {
	switch s.Kind {
	case Disconnected:
		if s.Endpoint != nil || s.Cause != "" {
			return fmt.Errorf("%w: disconnected state carries data", common.ErrInvalidState)
		}
	case Connecting, Connected:
		if s.Endpoint == nil {
			return fmt.Errorf("%w: %s state without endpoint", common.ErrInvalidState, s.Kind)
		}
		if !s.Endpoint.Address.IsValid() {
			return fmt.Errorf("%w: invalid endpoint address", common.ErrInvalidState)
		}
	case Disconnecting:
		if s.AfterDisconnect < ActionNothing || s.AfterDisconnect > ActionReconnect {
			return fmt.Errorf("%w: invalid action after disconnect", common.ErrInvalidState)
		}
	case Error:
		if !knownCauses[s.Cause] {
			return fmt.Errorf("%w: unknown error cause %q", common.ErrInvalidState, s.Cause)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", common.ErrInvalidState, int(s.Kind))
	}
	return nil
}

// Equal reports whether two states carry the same data.
func (s State) Equal(o State) bool {
	if s.Kind != o.Kind || s.AfterDisconnect != o.AfterDisconnect ||
		s.Cause != o.Cause || s.Blocking != o.Blocking {
		return false
	}
	if (s.Endpoint == nil) != (o.Endpoint == nil) || (s.Location == nil) != (o.Location == nil) {
		return false
	}
	if s.Endpoint != nil && *s.Endpoint != *o.Endpoint {
		return false
	}
	return s.Location == nil || *s.Location == *o.Location
}

// String returns a short human-readable description.
func (s State) String() string {
	switch s.Kind {
	case Connecting, Connected:
		if s.Endpoint != nil {
			return fmt.Sprintf("%s to %s", s.Kind, s.Endpoint)
		}
	case Disconnecting:
		if s.AfterDisconnect != ActionNothing {
			return fmt.Sprintf("%s (then %s)", s.Kind, s.AfterDisconnect)
		}
	case Error:
		if s.Blocking {
			return fmt.Sprintf("%s: %s (blocking)", s.Kind, s.Cause)
		}
		return fmt.Sprintf("%s: %s", s.Kind, s.Cause)
	}
	return s.Kind.String()
}
