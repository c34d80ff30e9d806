package api

import (
	"time"

	"github.com/yllada/vpn-bridge/connectivity"
	"github.com/yllada/vpn-bridge/tunnel"
)

// TimeNow is replaced in tests.
var TimeNow = time.Now

// APIError is the body of every non-2xx response.
type APIError struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is the payload for GET /v1/healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TunnelStateResponse is the payload for GET and PUT /v1/tunnel-state.
type TunnelStateResponse struct {
	State       tunnel.State `json:"state"`
	Summary     string       `json:"summary"`
	GeneratedAt string       `json:"generated_at"`
}

// ConnectivityResponse is the payload for GET /v1/connectivity.
type ConnectivityResponse struct {
	// Online is true while the bridge tracks at least one usable network.
	Online   bool                   `json:"online"`
	Networks []connectivity.Network `json:"networks"`
	// EngineOnline is the last signal the engine received, absent if none.
	EngineOnline *bool  `json:"engine_online,omitempty"`
	LiveHandles  int    `json:"live_handles"`
	GeneratedAt  string `json:"generated_at"`
}

func timestamp() string {
	return TimeNow().UTC().Format(time.RFC3339)
}
