package engine

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/tunnel"
)

var (
	_ Boundary           = (*Local)(nil)
	_ tunnel.StateSource = (*Local)(nil)
)

func TestHandle(t *testing.T) {
	var zero Handle
	assert.True(t, zero.IsZero())
	assert.Equal(t, "handle(nil)", zero.String())

	h1, h2 := NewHandle(), NewHandle()
	assert.False(t, h1.IsZero())
	assert.NotEqual(t, h1, h2)
}

func TestLocal_HandleLifecycle(t *testing.T) {
	l := NewLocal()

	h, err := l.CreateHandle()
	require.NoError(t, err)
	assert.Equal(t, 1, l.LiveHandles())

	_, known := l.Online()
	assert.False(t, known)

	require.NoError(t, l.NotifyConnectivityChange(true, h))
	online, known := l.Online()
	assert.True(t, online)
	assert.True(t, known)

	require.NoError(t, l.DestroyHandle(h))
	assert.Equal(t, 0, l.LiveHandles())

	assert.ErrorIs(t, l.DestroyHandle(h), common.ErrHandleReleased)
	assert.ErrorIs(t, l.NotifyConnectivityChange(false, h), common.ErrHandleReleased)

	online, _ = l.Online()
	assert.True(t, online, "notification through a released handle is ignored")
}

func TestLocal_UnknownHandle(t *testing.T) {
	l := NewLocal()
	assert.ErrorIs(t, l.NotifyConnectivityChange(true, NewHandle()), common.ErrUnknownHandle)
	assert.ErrorIs(t, l.DestroyHandle(Handle{}), common.ErrUnknownHandle)
}

func TestLocal_BroadcastsToAllSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLocal()

	a, err := l.SubscribeTunnelState(ctx)
	require.NoError(t, err)
	b, err := l.SubscribeTunnelState(ctx)
	require.NoError(t, err)

	ep := tunnel.Endpoint{Address: netip.MustParseAddrPort("10.1.2.3:51820"), Protocol: tunnel.UDP, TunnelType: tunnel.WireGuard}
	states := []tunnel.State{
		tunnel.ConnectingState(ep, nil),
		tunnel.ConnectedState(ep, nil),
	}
	for _, s := range states {
		require.NoError(t, l.PublishTunnelState(ctx, s))
	}

	for _, ch := range []<-chan tunnel.State{a, b} {
		for _, want := range states {
			assert.Equal(t, want, <-ch)
		}
	}
	assert.Equal(t, states[1], l.TunnelState())
}

func TestLocal_PublishRejectsInvalid(t *testing.T) {
	l := NewLocal()
	err := l.PublishTunnelState(context.Background(), tunnel.State{Kind: tunnel.Connected})
	assert.ErrorIs(t, err, common.ErrInvalidState)
	assert.Equal(t, tunnel.DisconnectedState(), l.TunnelState())
}

func TestLocal_SubscriptionEndsWithContext(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := l.SubscribeTunnelState(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}

	// Publishing with no subscribers left must not block
	require.NoError(t, l.PublishTunnelState(context.Background(), tunnel.DisconnectedState()))
}

func TestLocal_Close(t *testing.T) {
	l := NewLocal()
	ch, err := l.SubscribeTunnelState(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, ok := <-ch
	assert.False(t, ok)

	_, err = l.SubscribeTunnelState(context.Background())
	assert.ErrorIs(t, err, common.ErrEngineClosed)
	assert.ErrorIs(t, l.PublishTunnelState(context.Background(), tunnel.DisconnectedState()), common.ErrEngineClosed)
}

func TestLocal_PublishFeedsSynchronizer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLocal()
	defer l.Close()
	kv := &syncKV{values: map[string]string{}}
	store := tunnel.NewStore(kv, tunnel.Codec{})

	got := make(chan tunnel.State, 4)
	store.Subscribe(func(s tunnel.State) { got <- s })

	syncer, err := tunnel.NewSynchronizer(ctx, l, store)
	require.NoError(t, err)

	// Published before Run is scheduled; the subscription already exists.
	want := tunnel.ErrorState(tunnel.CauseStartTunnel, true)
	require.NoError(t, l.PublishTunnelState(ctx, want))

	go syncer.Run(ctx)

	select {
	case s := <-got:
		assert.Equal(t, want, s)
	case <-time.After(2 * time.Second):
		t.Fatal("state not delivered")
	}
	persisted, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, persisted)
}

type syncKV struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *syncKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *syncKV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *syncKV) Close() error { return nil }
