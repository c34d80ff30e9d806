package connectivity

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/vpn-bridge/common"
)

const (
	nmDest            = "org.freedesktop.NetworkManager"
	nmPath            = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmActiveInterface = "org.freedesktop.NetworkManager.Connection.Active"
	propertiesIface   = "org.freedesktop.DBus.Properties"

	// nmActivated is NM_ACTIVE_CONNECTION_STATE_ACTIVATED.
	nmActivated = 2
)

// connectionSource lists active connections and signals when they may have
// changed.
type connectionSource interface {
	ActiveConnections(ctx context.Context) (map[string]Network, error)
	Watch(ctx context.Context) (<-chan struct{}, error)
	Close() error
}

// NetworkManagerMonitor reports NetworkManager's active connections.
type NetworkManagerMonitor struct {
	newSource func() (connectionSource, error)

	mu      sync.Mutex
	source  connectionSource
	cancel  context.CancelFunc
	done    chan struct{}
	known   map[string]Network
	running bool
}

// NewNetworkManagerMonitor returns a monitor over NetworkManager on the
// system bus. The bus is only contacted on Register.
func NewNetworkManagerMonitor() *NetworkManagerMonitor {
	return &NetworkManagerMonitor{
		newSource: func() (connectionSource, error) {
			return newDBusSource()
		},
	}
}

// Register reports the currently active connections, then follows changes.
func (m *NetworkManagerMonitor) Register(ctx context.Context, cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return common.ErrAlreadyStarted
	}

	source, err := m.newSource()
	if err != nil {
		return err
	}
	changes, err := source.Watch(ctx)
	if err != nil {
		source.Close()
		return err
	}
	current, err := source.ActiveConnections(ctx)
	if err != nil {
		source.Close()
		return err
	}

	m.source = source
	m.known = make(map[string]Network)
	m.running = true
	m.report(current, cb)

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.follow(loopCtx, changes, cb, m.done)

	common.LogInfo("NetworkManager monitor started (%d active connections)", len(current))
	return nil
}

// Unregister stops following changes and closes the bus connection.
func (m *NetworkManagerMonitor) Unregister() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.source.Close()
	m.source = nil
	return err
}

func (m *NetworkManagerMonitor) follow(ctx context.Context, changes <-chan struct{}, cb Callback, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				common.LogWarn("NetworkManager signal stream closed")
				return
			}
			current, err := m.source.ActiveConnections(ctx)
			if err != nil {
				if ctx.Err() == nil {
					common.LogWarn("Failed to list active connections: %v", err)
				}
				continue
			}
			m.mu.Lock()
			if m.running {
				m.report(current, cb)
			}
			m.mu.Unlock()
		}
	}
}

// report diffs current against the known set. Callers hold m.mu.
func (m *NetworkManagerMonitor) report(current map[string]Network, cb Callback) {
	for id, old := range m.known {
		if now, ok := current[id]; !ok || now != old {
			delete(m.known, id)
			cb.OnLost(old)
		}
	}
	for id, now := range current {
		if _, ok := m.known[id]; !ok {
			m.known[id] = now
			cb.OnAvailable(now)
		}
	}
}

// dbusSource reads NetworkManager over the system bus.
type dbusSource struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	match   []dbus.MatchOption
}

func newDBusSource() (*dbusSource, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &dbusSource{conn: conn}, nil
}

func (s *dbusSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	s.match = []dbus.MatchOption{
		dbus.WithMatchSender(nmDest),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(nmPath),
	}
	if err := s.conn.AddMatchSignalContext(ctx, s.match...); err != nil {
		return nil, fmt.Errorf("add NetworkManager match: %w", err)
	}

	s.signals = make(chan *dbus.Signal, 16)
	s.conn.Signal(s.signals)

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		for range s.signals {
			select {
			case changes <- struct{}{}:
			default: // a refresh is already pending
			}
		}
	}()
	return changes, nil
}

func (s *dbusSource) ActiveConnections(ctx context.Context) (map[string]Network, error) {
	v, err := s.conn.Object(nmDest, nmPath).GetProperty(nmDest + ".ActiveConnections")
	if err != nil {
		return nil, fmt.Errorf("get ActiveConnections: %w", err)
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("unexpected ActiveConnections type %s", v.Signature())
	}

	networks := make(map[string]Network, len(paths))
	for _, path := range paths {
		var props map[string]dbus.Variant
		err := s.conn.Object(nmDest, path).
			CallWithContext(ctx, propertiesIface+".GetAll", 0, nmActiveInterface).
			Store(&props)
		if err != nil {
			// The connection went away between the two calls.
			common.LogDebug("Skipping active connection %s: %v", path, err)
			continue
		}
		n := networkFromProperties(string(path), props)
		networks[n.ID] = n
	}
	return networks, nil
}

func (s *dbusSource) Close() error {
	if s.signals != nil {
		s.conn.RemoveSignal(s.signals)
		_ = s.conn.RemoveMatchSignal(s.match...)
		close(s.signals)
	}
	return s.conn.Close()
}

// networkFromProperties maps a Connection.Active property set to a Network.
func networkFromProperties(path string, props map[string]dbus.Variant) Network {
	str := func(key string) string {
		if v, ok := props[key]; ok {
			if s, ok := v.Value().(string); ok {
				return s
			}
		}
		return ""
	}
	state := uint32(0)
	if v, ok := props["State"]; ok {
		state, _ = v.Value().(uint32)
	}
	vpn := false
	if v, ok := props["Vpn"]; ok {
		vpn, _ = v.Value().(bool)
	}

	connType := str("Type")
	switch connType {
	case "vpn", "wireguard", "tun":
		vpn = true
	}

	return Network{
		ID:       path,
		Name:     str("Id"),
		Internet: state == nmActivated && connType != "loopback",
		VPN:      vpn,
	}
}
