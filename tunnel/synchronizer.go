package tunnel

import (
	"context"
	"fmt"

	"github.com/yllada/vpn-bridge/common"
)

// StateSource is the engine's tunnel state stream. The channel closes when
// the engine stops publishing or ctx ends.
type StateSource interface {
	SubscribeTunnelState(ctx context.Context) (<-chan State, error)
}

// Synchronizer forwards every state published by a StateSource to a Store.
type Synchronizer struct {
	states <-chan State
	store  *Store
}

// NewSynchronizer subscribes to source and returns a Synchronizer writing
// into store. States published after it returns are buffered by the source
// until Run consumes them. The subscription lives until ctx ends.
func NewSynchronizer(ctx context.Context, source StateSource, store *Store) (*Synchronizer, error) {
	states, err := source.SubscribeTunnelState(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to tunnel state: %w", err)
	}
	return &Synchronizer{states: states, store: store}, nil
}

// Run forwards states until ctx ends or the stream closes. A failed write
// ends Run with that error.
func (s *Synchronizer) Run(ctx context.Context) error {
	common.LogInfo("Tunnel state synchronizer started")
	defer common.LogInfo("Tunnel state synchronizer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state, ok := <-s.states:
			if !ok {
				return nil
			}
			if err := s.store.Write(ctx, state); err != nil {
				common.LogError("Failed to persist tunnel state %s: %v", state, err)
				return fmt.Errorf("persist tunnel state: %w", err)
			}
		}
	}
}
