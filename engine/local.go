package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/tunnel"
)

const subscriberBuffer = 16

// Local is an in-process engine. It keeps a registry of live handles,
// records the connectivity signal it receives, and broadcasts tunnel states
// to every subscriber.
type Local struct {
	mu       sync.Mutex
	handles  map[Handle]bool // false once destroyed
	online   bool
	notified bool
	current  tunnel.State

	// pubMu serializes publishing with subscriber removal.
	pubMu  sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch     chan tunnel.State
	done   <-chan struct{}
	closed bool
}

// NewLocal returns an engine with no handles and a Disconnected tunnel.
func NewLocal() *Local {
	return &Local{
		handles: make(map[Handle]bool),
		current: tunnel.DisconnectedState(),
		subs:    make(map[*subscriber]struct{}),
	}
}

// CreateHandle registers a new handle.
func (l *Local) CreateHandle() (Handle, error) {
	h := NewHandle()
	l.mu.Lock()
	l.handles[h] = true
	l.mu.Unlock()
	common.LogDebug("Engine created %s", h)
	return h, nil
}

// NotifyConnectivityChange records the connectivity signal sent through h.
func (l *Local) NotifyConnectivityChange(online bool, h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkLive(h); err != nil {
		return err
	}
	l.online = online
	l.notified = true
	common.LogInfo("Engine connectivity changed: online=%t", online)
	return nil
}

// DestroyHandle releases h. Releasing it twice returns common.ErrHandleReleased.
func (l *Local) DestroyHandle(h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkLive(h); err != nil {
		return err
	}
	l.handles[h] = false
	common.LogDebug("Engine destroyed %s", h)
	return nil
}

func (l *Local) checkLive(h Handle) error {
	live, known := l.handles[h]
	if !known {
		return fmt.Errorf("%w: %s", common.ErrUnknownHandle, h)
	}
	if !live {
		return fmt.Errorf("%w: %s", common.ErrHandleReleased, h)
	}
	return nil
}

// LiveHandles returns the number of handles created and not yet destroyed.
func (l *Local) LiveHandles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, live := range l.handles {
		if live {
			n++
		}
	}
	return n
}

// Online returns the last connectivity signal and whether any was received.
func (l *Local) Online() (online, known bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.online, l.notified
}

// TunnelState returns the last published state.
func (l *Local) TunnelState() tunnel.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// SubscribeTunnelState returns a stream of every state published after the
// call. The channel closes when ctx ends or the engine is closed.
func (l *Local) SubscribeTunnelState(ctx context.Context) (<-chan tunnel.State, error) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	if l.closed {
		return nil, common.ErrEngineClosed
	}

	sub := &subscriber{
		ch:   make(chan tunnel.State, subscriberBuffer),
		done: ctx.Done(),
	}
	l.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		l.pubMu.Lock()
		defer l.pubMu.Unlock()
		l.remove(sub)
	}()

	return sub.ch, nil
}

// PublishTunnelState validates s and delivers it to every subscriber. It
// blocks until each subscriber accepted it or went away.
func (l *Local) PublishTunnelState(ctx context.Context, s tunnel.State) error {
	if err := s.Validate(); err != nil {
		return err
	}

	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	if l.closed {
		return common.ErrEngineClosed
	}

	l.mu.Lock()
	l.current = s
	l.mu.Unlock()

	for sub := range l.subs {
		select {
		case sub.ch <- s:
		case <-sub.done:
			l.remove(sub)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close ends every subscription stream. Further publishing fails.
func (l *Local) Close() error {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for sub := range l.subs {
		l.remove(sub)
	}
	return nil
}

// remove drops sub and closes its stream. Callers hold pubMu.
func (l *Local) remove(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(l.subs, sub)
	close(sub.ch)
}
