package ui

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/vpn-bridge/api"
	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/tunnel"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = notificationsDest + ".Notify"

	// Expiry in milliseconds; -1 lets the server decide.
	notificationExpiry = int32(-1)
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotificationInfo NotificationType = iota
	NotificationSuccess
	NotificationWarning
	NotificationError
)

// urgency maps a type to the freedesktop urgency hint.
func (t NotificationType) urgency() byte {
	switch t {
	case NotificationError:
		return 2
	case NotificationWarning:
		return 1
	default:
		return 0
	}
}

func (t NotificationType) icon() string {
	switch t {
	case NotificationSuccess:
		return "network-vpn"
	case NotificationWarning:
		return "dialog-warning"
	case NotificationError:
		return "network-vpn-error"
	default:
		return "network-vpn-disconnected"
	}
}

// Notification represents a system notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// Notifier displays notifications.
type Notifier interface {
	Notify(n Notification) error
}

// DesktopNotifier sends notifications to the session's notification server.
type DesktopNotifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	// replaces is the id of the last notification, so that each new one
	// replaces it instead of stacking.
	replaces uint32
}

// NewDesktopNotifier connects to the session bus.
func NewDesktopNotifier() (*DesktopNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DesktopNotifier{conn: conn, obj: conn.Object(notificationsDest, notificationsPath)}, nil
}

// Notify shows n.
func (d *DesktopNotifier) Notify(n Notification) error {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(n.Type.urgency()),
	}
	var id uint32
	err := d.obj.Call(notificationsNotify, 0,
		common.AppName, d.replaces, n.Type.icon(), n.Title, n.Message,
		[]string{}, hints, notificationExpiry,
	).Store(&id)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	d.replaces = id
	return nil
}

// Close closes the bus connection.
func (d *DesktopNotifier) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// transitionNotifications returns the notifications for going from prev to
// next. Nothing is reported for the first snapshot.
func transitionNotifications(prev, next *snapshotMsg) []Notification {
	if prev == nil || next == nil {
		return nil
	}

	var out []Notification
	if prevKind, kind := prev.state.State.Kind, next.state.State.Kind; prevKind != kind {
		out = append(out, stateNotification(next.state.State))
	}
	if prev.conn.Online != next.conn.Online {
		if next.conn.Online {
			out = append(out, Notification{
				Title:   "Network available",
				Message: networkSummary(next.conn),
				Type:    NotificationInfo,
			})
		} else {
			out = append(out, Notification{
				Title:   "Offline",
				Message: "No usable network",
				Type:    NotificationWarning,
			})
		}
	}
	return out
}

func stateNotification(s tunnel.State) Notification {
	n := Notification{Message: s.String()}
	switch s.Kind {
	case tunnel.Connected:
		n.Title, n.Type = "Tunnel connected", NotificationSuccess
		if s.Location != nil && s.Location.City != "" {
			n.Message = fmt.Sprintf("%s, %s", s.Location.City, s.Location.Country)
		}
	case tunnel.Connecting:
		n.Title, n.Type = "Tunnel connecting", NotificationInfo
	case tunnel.Disconnecting:
		n.Title, n.Type = "Tunnel disconnecting", NotificationInfo
	case tunnel.Error:
		n.Title, n.Type = "Tunnel error", NotificationError
	default:
		n.Title, n.Type = "Tunnel disconnected", NotificationInfo
	}
	return n
}

func networkSummary(c api.ConnectivityResponse) string {
	switch len(c.Networks) {
	case 0:
		return "Online"
	case 1:
		if c.Networks[0].Name != "" {
			return c.Networks[0].Name
		}
		return c.Networks[0].ID
	default:
		return fmt.Sprintf("%d networks", len(c.Networks))
	}
}
