// Package api exposes the daemon's local HTTP control plane.
//
// Routes are versioned under /v1:
//
//   - GET /v1/healthz: liveness
//   - GET /v1/tunnel-state: the persisted tunnel state
//   - PUT /v1/tunnel-state: publish a state on the engine's state stream
//   - GET /v1/connectivity: the bridge's network set and the engine's view
//
// Errors are returned as APIError with an RFC3339 timestamp. Client is the
// matching consumer used by the command line and the terminal viewer.
package api
