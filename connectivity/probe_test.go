package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/common"
)

// switchDialer succeeds while up is set.
type switchDialer struct {
	up    atomic.Bool
	dials atomic.Int32
}

func (d *switchDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials.Add(1)
	if !d.up.Load() {
		return nil, errors.New("network is unreachable")
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

// recordingCallback records transitions.
type recordingCallback struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingCallback) OnAvailable(n Network) { r.add("available " + n.ID) }
func (r *recordingCallback) OnLost(n Network)      { r.add("lost " + n.ID) }

func (r *recordingCallback) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingCallback) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testProbeConfig() ProbeConfig {
	return ProbeConfig{
		Interval:         10 * time.Millisecond,
		Timeout:          time.Second,
		FailureThreshold: 2,
		Hosts:            []string{"192.0.2.1:443", "192.0.2.2:443"},
	}
}

func TestProbeMonitor_ReportsTransitions(t *testing.T) {
	dialer := &switchDialer{}
	dialer.up.Store(true)
	cb := &recordingCallback{}
	pm := NewProbeMonitor(testProbeConfig(), dialer)

	require.NoError(t, pm.Register(context.Background(), cb))
	defer pm.Unregister()

	// The first probe runs inside Register
	assert.Equal(t, []string{"available probe"}, cb.snapshot())
	assert.True(t, pm.IsRunning())

	dialer.up.Store(false)
	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "lost probe", cb.snapshot()[1])

	dialer.up.Store(true)
	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "available probe", cb.snapshot()[2])
}

func TestProbeMonitor_UnreachableAtStart(t *testing.T) {
	dialer := &switchDialer{}
	cb := &recordingCallback{}
	pm := NewProbeMonitor(testProbeConfig(), dialer)

	require.NoError(t, pm.Register(context.Background(), cb))
	require.NoError(t, pm.Unregister())

	assert.Empty(t, cb.snapshot())
	// Every host was tried
	assert.GreaterOrEqual(t, int(dialer.dials.Load()), 2)
}

func TestProbeMonitor_Lifecycle(t *testing.T) {
	pm := NewProbeMonitor(testProbeConfig(), &switchDialer{})
	cb := &recordingCallback{}

	require.NoError(t, pm.Unregister(), "unregister before register is a no-op")
	require.NoError(t, pm.Register(context.Background(), cb))
	assert.ErrorIs(t, pm.Register(context.Background(), cb), common.ErrAlreadyStarted)
	require.NoError(t, pm.Unregister())
	assert.False(t, pm.IsRunning())

	// No callbacks after Unregister
	before := len(cb.snapshot())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(cb.snapshot()))

	require.NoError(t, pm.Register(context.Background(), cb))
	require.NoError(t, pm.Unregister())
}

func TestProbeMonitor_NoHosts(t *testing.T) {
	cfg := testProbeConfig()
	cfg.Hosts = nil
	err := NewProbeMonitor(cfg, nil).Register(context.Background(), &recordingCallback{})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestNewProbeMonitor_Defaults(t *testing.T) {
	pm := NewProbeMonitor(ProbeConfig{Hosts: []string{"192.0.2.1:443"}}, nil)
	assert.Equal(t, common.ProbeInterval, pm.config.Interval)
	assert.Equal(t, common.ProbeTimeout, pm.config.Timeout)
	assert.Equal(t, 2, pm.config.FailureThreshold)
	assert.IsType(t, &net.Dialer{}, pm.dialer)
}

func TestProbeMonitor_DrivesBridge(t *testing.T) {
	boundary := &orderingBoundary{}
	dialer := &switchDialer{}
	dialer.up.Store(true)
	pm := NewProbeMonitor(testProbeConfig(), dialer)
	bridge := NewBridge(boundary, pm)

	require.NoError(t, bridge.Start(context.Background()))
	assert.True(t, bridge.IsOnline())

	dialer.up.Store(false)
	require.Eventually(t, func() bool { return !bridge.IsOnline() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bridge.Stop())
	assert.False(t, pm.IsRunning())
}
