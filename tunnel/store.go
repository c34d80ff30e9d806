package tunnel

import (
	"context"
	"sync"

	"github.com/yllada/vpn-bridge/common"
)

// Listener receives every state the store persisted.
type Listener func(State)

// Store persists the last known tunnel state and fans it out to subscribers.
type Store struct {
	backend common.KVStore
	codec   Codec

	// writeMu serializes Write so that persist and notify happen in order.
	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   []*Subscription
	legacy *Subscription
}

// Subscription is a registered listener. Unsubscribe detaches it.
type Subscription struct {
	store    *Store
	listener Listener
	removed  bool // guarded by store.subsMu
}

// NewStore returns a Store persisting through backend with codec.
func NewStore(backend common.KVStore, codec Codec) *Store {
	return &Store{backend: backend, codec: codec}
}

// Read returns the persisted state, or Disconnected if nothing was ever written.
func (s *Store) Read(ctx context.Context) (State, error) {
	value, ok, err := s.backend.Get(ctx, common.TunnelStateKey)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return DisconnectedState(), nil
	}
	return s.codec.Decode(value)
}

// Write persists state and notifies subscribers, unless the serialized form
// equals the one already persisted.
func (s *Store) Write(ctx context.Context, state State) error {
	encoded, err := s.codec.Encode(state)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, ok, err := s.backend.Get(ctx, common.TunnelStateKey)
	if err != nil {
		return err
	}
	if ok && current == encoded {
		return nil
	}

	if err := s.backend.Set(ctx, common.TunnelStateKey, encoded); err != nil {
		return err
	}
	common.LogDebug("Tunnel state persisted: %s", state)

	// Subscribers observe what a later Read returns.
	persisted, err := s.codec.Decode(encoded)
	if err != nil {
		return err
	}
	for _, sub := range s.subscribers() {
		sub.listener(persisted)
	}
	return nil
}

// Subscribe registers fn. Subscribers are called in subscription order.
func (s *Store) Subscribe(fn Listener) *Subscription {
	sub := &Subscription{store: s, listener: fn}
	s.subsMu.Lock()
	s.subs = append(s.subs, sub)
	s.subsMu.Unlock()
	return sub
}

// SetListener replaces the single listener slot. A nil fn detaches the
// current one. Subscribers added with Subscribe are unaffected.
func (s *Store) SetListener(fn Listener) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.legacy != nil {
		s.removeLocked(s.legacy)
		s.legacy = nil
	}
	if fn == nil {
		return
	}
	s.legacy = &Subscription{store: s, listener: fn}
	s.subs = append(s.subs, s.legacy)
}

func (s *Store) subscribers() []*Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	out := make([]*Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// Unsubscribe detaches the listener. Calling it more than once is a no-op.
func (sub *Subscription) Unsubscribe() {
	s := sub.store
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.removeLocked(sub)
}

// removeLocked drops sub from the subscriber list. Callers hold subsMu.
func (s *Store) removeLocked(sub *Subscription) {
	if sub.removed {
		return
	}
	sub.removed = true
	for i, other := range s.subs {
		if other == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}
