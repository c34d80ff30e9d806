// Package engine models the boundary to the native tunnel engine.
//
// The engine itself lives on the other side of a foreign-function boundary.
// This package defines what the bridge needs from it (Boundary) and Local,
// an in-process engine used by the daemon and by tests.
package engine

import "github.com/google/uuid"

// Handle is an opaque token identifying a connectivity listener registered
// with the engine. The zero Handle is invalid.
type Handle struct {
	id uuid.UUID
}

// NewHandle returns a fresh handle token.
func NewHandle() Handle {
	return Handle{id: uuid.New()}
}

// IsZero reports whether h was never created.
func (h Handle) IsZero() bool {
	return h.id == uuid.Nil
}

func (h Handle) String() string {
	if h.IsZero() {
		return "handle(nil)"
	}
	return "handle(" + h.id.String() + ")"
}

// Boundary is the set of calls the bridge makes into the engine.
//
// A handle is created once, used for notifications while live, and destroyed
// exactly once. Using a handle after DestroyHandle is an error.
type Boundary interface {
	CreateHandle() (Handle, error)
	NotifyConnectivityChange(online bool, h Handle) error
	DestroyHandle(h Handle) error
}
