package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/common"
)

// fakeSource serves scripted connection sets.
type fakeSource struct {
	mu       sync.Mutex
	current  map[string]Network
	changes  chan struct{}
	watchErr error
	closed   bool
}

func newFakeSource(networks ...Network) *fakeSource {
	f := &fakeSource{changes: make(chan struct{}, 1), current: map[string]Network{}}
	for _, n := range networks {
		f.current[n.ID] = n
	}
	return f
}

func (f *fakeSource) ActiveConnections(context.Context) (map[string]Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Network, len(f.current))
	for k, v := range f.current {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) Watch(context.Context) (<-chan struct{}, error) {
	return f.changes, f.watchErr
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) set(networks ...Network) {
	f.mu.Lock()
	f.current = map[string]Network{}
	for _, n := range networks {
		f.current[n.ID] = n
	}
	f.mu.Unlock()
	f.changes <- struct{}{}
}

func monitorWith(src *fakeSource) *NetworkManagerMonitor {
	return &NetworkManagerMonitor{
		newSource: func() (connectionSource, error) { return src, nil },
	}
}

func TestNetworkManagerMonitor_ReportsDiffs(t *testing.T) {
	wired := Network{ID: "/ac/1", Name: "Wired", Internet: true}
	wlan := Network{ID: "/ac/2", Name: "Home", Internet: true}
	wlanActivating := Network{ID: "/ac/2", Name: "Home", Internet: false}

	src := newFakeSource(wired, wlanActivating)
	cb := &recordingCallback{}
	m := monitorWith(src)

	require.NoError(t, m.Register(context.Background(), cb))
	assert.ElementsMatch(t, []string{"available /ac/1", "available /ac/2"}, cb.snapshot())

	src.set(wired, wlan)
	require.Eventually(t, func() bool { return len(cb.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"lost /ac/2", "available /ac/2"}, cb.snapshot()[2:])

	src.set(wlan)
	require.Eventually(t, func() bool { return len(cb.snapshot()) == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "lost /ac/1", cb.snapshot()[4])

	require.NoError(t, m.Unregister())
	assert.True(t, src.closed)
	require.NoError(t, m.Unregister())
}

func TestNetworkManagerMonitor_Errors(t *testing.T) {
	m := &NetworkManagerMonitor{
		newSource: func() (connectionSource, error) { return nil, errors.New("no system bus") },
	}
	assert.ErrorContains(t, m.Register(context.Background(), &recordingCallback{}), "no system bus")

	src := newFakeSource()
	src.watchErr = errors.New("access denied")
	assert.Error(t, monitorWith(src).Register(context.Background(), &recordingCallback{}))
	assert.True(t, src.closed)
}

func TestNetworkManagerMonitor_AlreadyStarted(t *testing.T) {
	m := monitorWith(newFakeSource())
	require.NoError(t, m.Register(context.Background(), &recordingCallback{}))
	defer m.Unregister()
	assert.ErrorIs(t, m.Register(context.Background(), &recordingCallback{}), common.ErrAlreadyStarted)
}

func TestNetworkFromProperties(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]dbus.Variant
		want  Network
	}{
		{
			name: "activated wifi",
			props: map[string]dbus.Variant{
				"Id": dbus.MakeVariant("Home"), "Type": dbus.MakeVariant("802-11-wireless"),
				"State": dbus.MakeVariant(uint32(2)), "Vpn": dbus.MakeVariant(false),
			},
			want: Network{ID: "/p", Name: "Home", Internet: true},
		},
		{
			name: "activating ethernet",
			props: map[string]dbus.Variant{
				"Id": dbus.MakeVariant("Wired"), "Type": dbus.MakeVariant("802-3-ethernet"),
				"State": dbus.MakeVariant(uint32(1)),
			},
			want: Network{ID: "/p", Name: "Wired"},
		},
		{
			name: "wireguard",
			props: map[string]dbus.Variant{
				"Id": dbus.MakeVariant("wg0"), "Type": dbus.MakeVariant("wireguard"),
				"State": dbus.MakeVariant(uint32(2)),
			},
			want: Network{ID: "/p", Name: "wg0", Internet: true, VPN: true},
		},
		{
			name: "vpn flag",
			props: map[string]dbus.Variant{
				"Type": dbus.MakeVariant("vpn"), "State": dbus.MakeVariant(uint32(2)), "Vpn": dbus.MakeVariant(true),
			},
			want: Network{ID: "/p", Internet: true, VPN: true},
		},
		{
			name: "loopback",
			props: map[string]dbus.Variant{
				"Id": dbus.MakeVariant("lo"), "Type": dbus.MakeVariant("loopback"),
				"State": dbus.MakeVariant(uint32(2)),
			},
			want: Network{ID: "/p", Name: "lo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, networkFromProperties("/p", tt.props))
		})
	}
}
