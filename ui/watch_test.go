package ui

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/api"
	"github.com/yllada/vpn-bridge/connectivity"
	"github.com/yllada/vpn-bridge/tunnel"
)

type fakeSource struct {
	state api.TunnelStateResponse
	conn  api.ConnectivityResponse
	err   error
}

func (f *fakeSource) TunnelState(context.Context) (api.TunnelStateResponse, error) {
	return f.state, f.err
}

func (f *fakeSource) Connectivity(context.Context) (api.ConnectivityResponse, error) {
	return f.conn, f.err
}

type recordingNotifier struct {
	sent []Notification
}

func (r *recordingNotifier) Notify(n Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func connected() api.TunnelStateResponse {
	s := tunnel.ConnectedState(tunnel.Endpoint{
		Address:    netip.MustParseAddrPort("185.65.134.1:51820"),
		Protocol:   tunnel.UDP,
		TunnelType: tunnel.WireGuard,
	}, &tunnel.Location{Country: "Sweden", City: "Gothenburg", Hostname: "se-got-wg-001"})
	return api.TunnelStateResponse{State: s, Summary: s.String()}
}

func disconnected() api.TunnelStateResponse {
	s := tunnel.DisconnectedState()
	return api.TunnelStateResponse{State: s, Summary: s.String()}
}

func online() api.ConnectivityResponse {
	return api.ConnectivityResponse{
		Online:   true,
		Networks: []connectivity.Network{{ID: "/ac/1", Name: "Wired", Internet: true}},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestFetch(t *testing.T) {
	src := &fakeSource{state: connected(), conn: online()}
	msg := fetch(src, time.Second)()

	snap, ok := msg.(snapshotMsg)
	require.True(t, ok, "got %T", msg)
	assert.True(t, snap.conn.Online)
	assert.Equal(t, tunnel.Connected, snap.state.State.Kind)

	src.err = errors.New("connection refused")
	_, ok = fetch(src, time.Second)().(errMsg)
	assert.True(t, ok)
}

func TestModel_View(t *testing.T) {
	m := NewModel(&fakeSource{}, WatchOptions{})
	assert.Contains(t, m.View(), "connecting to daemon")

	m, cmd := update(t, m, errMsg{errors.New("connection refused")})
	assert.NotNil(t, cmd, "a failed poll schedules the next one")
	assert.Contains(t, m.View(), "daemon unreachable: connection refused")

	m, _ = update(t, m, snapshotMsg{state: connected(), conn: online(), at: time.Now()})
	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "185.65.134.1:51820/udp")
	assert.Contains(t, view, "Gothenburg, Sweden (se-got-wg-001)")
	assert.Contains(t, view, "online")
	assert.Contains(t, view, "Wired")
	assert.Contains(t, view, "no signal yet")
	assert.NotContains(t, view, "unreachable")

	m, _ = update(t, m, errMsg{errors.New("timeout")})
	assert.Contains(t, m.View(), "stale: timeout")
}

func TestModel_ErrorState(t *testing.T) {
	s := tunnel.ErrorState(tunnel.CauseIsOffline, true)
	signal := false
	m := NewModel(&fakeSource{}, WatchOptions{})
	m, _ = update(t, m, snapshotMsg{
		state: api.TunnelStateResponse{State: s, Summary: s.String()},
		conn:  api.ConnectivityResponse{EngineOnline: &signal},
		at:    time.Now(),
	})

	view := m.View()
	assert.Contains(t, view, string(tunnel.CauseIsOffline))
	assert.Contains(t, view, "offline")
	assert.Contains(t, view, "online=false")
}

func TestModel_Keys(t *testing.T) {
	m := NewModel(&fakeSource{}, WatchOptions{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}

func TestModel_Notifications(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewModel(&fakeSource{}, WatchOptions{Notifier: notifier})

	m, _ = update(t, m, snapshotMsg{state: disconnected(), conn: online()})
	assert.Empty(t, notifier.sent, "first snapshot is not a transition")

	m, _ = update(t, m, snapshotMsg{state: disconnected(), conn: online()})
	assert.Empty(t, notifier.sent)

	m, _ = update(t, m, snapshotMsg{state: connected(), conn: online()})
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Tunnel connected", notifier.sent[0].Title)
	assert.Equal(t, "Gothenburg, Sweden", notifier.sent[0].Message)
	assert.Equal(t, NotificationSuccess, notifier.sent[0].Type)

	_, _ = update(t, m, snapshotMsg{state: disconnected(), conn: api.ConnectivityResponse{}})
	require.Len(t, notifier.sent, 3)
	assert.Equal(t, "Tunnel disconnected", notifier.sent[1].Title)
	assert.Equal(t, "Offline", notifier.sent[2].Title)
	assert.Equal(t, NotificationWarning, notifier.sent[2].Type)
}

func TestRenderPlain(t *testing.T) {
	got := RenderPlain(connected(), online())
	assert.Equal(t, `tunnel="connected to 185.65.134.1:51820/udp" connectivity=online networks=[/ac/1]`, got)

	got = RenderPlain(disconnected(), api.ConnectivityResponse{})
	assert.Equal(t, `tunnel="disconnected" connectivity=offline networks=[]`, got)
}
