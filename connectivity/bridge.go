package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/engine"
)

type lifecycle int

const (
	idle lifecycle = iota
	started
	stopped
)

// Bridge relays system connectivity to the engine.
type Bridge struct {
	boundary engine.Boundary
	monitor  Monitor

	mu       sync.Mutex
	state    lifecycle
	handle   engine.Handle
	networks map[string]Network
}

// NewBridge returns a bridge reporting to boundary what monitor observes.
func NewBridge(boundary engine.Boundary, monitor Monitor) *Bridge {
	return &Bridge{
		boundary: boundary,
		monitor:  monitor,
		networks: make(map[string]Network),
	}
}

// Start creates the engine handle and registers with the monitor. If
// registration fails the handle is destroyed again and the error returned;
// the bridge may then be started again.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case started:
		b.mu.Unlock()
		return common.ErrAlreadyStarted
	case stopped:
		b.mu.Unlock()
		return common.ErrBridgeClosed
	}

	handle, err := b.boundary.CreateHandle()
	if err != nil {
		b.mu.Unlock()
		return common.WrapError(err, "failed to create engine handle")
	}
	b.handle = handle
	b.state = started
	b.mu.Unlock()

	// The monitor may report present networks from within Register.
	if err := b.monitor.Register(ctx, b); err != nil {
		b.mu.Lock()
		b.state = idle
		b.handle = engine.Handle{}
		b.networks = make(map[string]Network)
		b.mu.Unlock()

		if derr := b.boundary.DestroyHandle(handle); derr != nil {
			common.LogWarn("Failed to destroy %s after failed start: %v", handle, derr)
		}
		return common.WrapError(fmt.Errorf("%w: %w", common.ErrMonitorFailed, err), "connectivity bridge start")
	}

	common.LogInfo("Connectivity bridge started with %s", handle)
	return nil
}

// Stop unregisters from the monitor and destroys the engine handle. It does
// nothing if the bridge is not running.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.state != started {
		b.mu.Unlock()
		return nil
	}
	b.state = stopped
	handle := b.handle
	b.handle = engine.Handle{}
	b.networks = make(map[string]Network)
	b.mu.Unlock()

	var errs []error
	if err := b.monitor.Unregister(); err != nil {
		errs = append(errs, fmt.Errorf("unregister monitor: %w", err))
	}
	if err := b.boundary.DestroyHandle(handle); err != nil {
		errs = append(errs, fmt.Errorf("destroy %s: %w", handle, err))
	}

	common.LogInfo("Connectivity bridge stopped")
	return errors.Join(errs...)
}

// OnAvailable adds n to the tracked set if it provides internet access and
// is not a VPN.
func (b *Bridge) OnAvailable(n Network) {
	if !n.usable() {
		common.LogDebug("Ignoring network %s (internet=%t vpn=%t)", n.ID, n.Internet, n.VPN)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != started {
		return
	}

	wasOnline := len(b.networks) > 0
	b.networks[n.ID] = n
	if !wasOnline {
		b.notify(true)
	}
}

// OnLost removes n from the tracked set.
func (b *Bridge) OnLost(n Network) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != started {
		return
	}

	if _, tracked := b.networks[n.ID]; !tracked {
		return
	}
	delete(b.networks, n.ID)
	if len(b.networks) == 0 {
		b.notify(false)
	}
}

// notify sends the signal to the engine. Callers hold b.mu.
func (b *Bridge) notify(online bool) {
	common.LogInfo("Connectivity changed: online=%t", online)
	if err := b.boundary.NotifyConnectivityChange(online, b.handle); err != nil {
		common.LogWarn("Engine rejected connectivity change: %v", err)
	}
}

// IsOnline reports whether any usable network is tracked.
func (b *Bridge) IsOnline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.networks) > 0
}

// Networks returns the tracked networks ordered by ID.
func (b *Bridge) Networks() []Network {
	b.mu.Lock()
	out := make([]Network, 0, len(b.networks))
	for _, n := range b.networks {
		out = append(out, n)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
