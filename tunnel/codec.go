package tunnel

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/yllada/vpn-bridge/common"
)

// Codec converts states to and from their persisted string form.
//
// With RetainEndpoint unset the relay endpoint and location are not
// persisted, and Connecting or Connected states decode with
// PlaceholderEndpoint.
type Codec struct {
	RetainEndpoint bool
}

type wireEndpoint struct {
	Address          string `json:"address"`
	Protocol         string `json:"protocol"`
	TunnelType       string `json:"tunnel_type"`
	QuantumResistant bool   `json:"quantum_resistant,omitempty"`
}

type wireState struct {
	State           string        `json:"state"`
	Endpoint        *wireEndpoint `json:"endpoint,omitempty"`
	Location        *Location     `json:"location,omitempty"`
	AfterDisconnect string        `json:"after_disconnect,omitempty"`
	Cause           string        `json:"cause,omitempty"`
	Blocking        bool          `json:"blocking,omitempty"`
}

// Encode validates s and returns its persisted form.
func (c Codec) Encode(s State) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	w := toWire(s)
	if !c.RetainEndpoint {
		w.Endpoint = nil
		w.Location = nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidState, err)
	}
	return string(data), nil
}

// Decode parses a value produced by Encode.
func (c Codec) Decode(value string) (State, error) {
	var w wireState
	if err := json.Unmarshal([]byte(value), &w); err != nil {
		return State{}, fmt.Errorf("%w: %v", common.ErrInvalidState, err)
	}
	s, err := fromWire(w)
	if err != nil {
		return State{}, err
	}
	if (s.Kind == Connecting || s.Kind == Connected) && s.Endpoint == nil {
		ep := PlaceholderEndpoint()
		s.Endpoint = &ep
	}
	return s, s.Validate()
}

// MarshalJSON encodes the full state, endpoint included.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(s))
}

// UnmarshalJSON decodes a state produced by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := fromWire(w)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func toWire(s State) wireState {
	w := wireState{
		State:    s.Kind.String(),
		Location: s.Location,
		Cause:    string(s.Cause),
		Blocking: s.Blocking,
	}
	if s.Endpoint != nil {
		w.Endpoint = &wireEndpoint{
			Address:          s.Endpoint.Address.String(),
			Protocol:         string(s.Endpoint.Protocol),
			TunnelType:       string(s.Endpoint.TunnelType),
			QuantumResistant: s.Endpoint.QuantumResistant,
		}
	}
	if s.Kind == Disconnecting {
		w.AfterDisconnect = s.AfterDisconnect.String()
	}
	return w
}

func fromWire(w wireState) (State, error) {
	kind, err := ParseKind(w.State)
	if err != nil {
		return State{}, err
	}
	action, err := ParseAction(w.AfterDisconnect)
	if err != nil {
		return State{}, err
	}
	s := State{
		Kind:            kind,
		Location:        w.Location,
		AfterDisconnect: action,
		Cause:           ErrorCause(w.Cause),
		Blocking:        w.Blocking,
	}
	if w.Endpoint != nil {
		addr, err := netip.ParseAddrPort(w.Endpoint.Address)
		if err != nil {
			return State{}, fmt.Errorf("%w: endpoint: %v", common.ErrInvalidState, err)
		}
		s.Endpoint = &Endpoint{
			Address:          addr,
			Protocol:         TransportProtocol(w.Endpoint.Protocol),
			TunnelType:       TunnelType(w.Endpoint.TunnelType),
			QuantumResistant: w.Endpoint.QuantumResistant,
		}
	}
	return s, nil
}
