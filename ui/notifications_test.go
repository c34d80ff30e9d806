package ui

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/tunnel"
)

// fakeNotifications answers Notify with increasing ids.
type fakeNotifications struct {
	dbus.BusObject
	args [][]any
	next uint32
	err  error
}

func (f *fakeNotifications) Call(method string, _ dbus.Flags, args ...any) *dbus.Call {
	f.args = append(f.args, args)
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	f.next++
	return &dbus.Call{Body: []any{f.next}}
}

func TestDesktopNotifier_Notify(t *testing.T) {
	obj := &fakeNotifications{}
	d := &DesktopNotifier{obj: obj}

	require.NoError(t, d.Notify(Notification{Title: "Tunnel error", Message: "is_offline", Type: NotificationError}))
	require.NoError(t, d.Notify(Notification{Title: "Tunnel connected", Type: NotificationSuccess}))

	require.Len(t, obj.args, 2)
	first := obj.args[0]
	assert.Equal(t, uint32(0), first[1], "first notification replaces nothing")
	assert.Equal(t, "network-vpn-error", first[2])
	assert.Equal(t, "Tunnel error", first[3])
	hints := first[6].(map[string]dbus.Variant)
	assert.Equal(t, byte(2), hints["urgency"].Value())

	assert.Equal(t, uint32(1), obj.args[1][1], "second notification replaces the first")
	assert.NoError(t, d.Close())
}

func TestDesktopNotifier_Error(t *testing.T) {
	d := &DesktopNotifier{obj: &fakeNotifications{err: errors.New("service unknown")}}
	err := d.Notify(Notification{Title: "x"})
	assert.ErrorContains(t, err, "service unknown")
	assert.Zero(t, d.replaces)
}

func TestStateNotification(t *testing.T) {
	tests := []struct {
		state tunnel.State
		title string
		typ   NotificationType
	}{
		{tunnel.DisconnectedState(), "Tunnel disconnected", NotificationInfo},
		{tunnel.ConnectingState(tunnel.PlaceholderEndpoint(), nil), "Tunnel connecting", NotificationInfo},
		{tunnel.ConnectedState(tunnel.PlaceholderEndpoint(), nil), "Tunnel connected", NotificationSuccess},
		{tunnel.DisconnectingState(tunnel.ActionReconnect), "Tunnel disconnecting", NotificationInfo},
		{tunnel.ErrorState(tunnel.CauseAuthFailed, false), "Tunnel error", NotificationError},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			n := stateNotification(tt.state)
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, tt.typ, n.Type)
			assert.Equal(t, tt.state.String(), n.Message)
		})
	}
}
