// Package ui provides the terminal status viewer for a running daemon.
//
// The viewer is a bubbletea program polling the daemon's local API. It
// shows the persisted tunnel state, the networks the connectivity bridge
// tracks and the last signal the engine received, and can raise desktop
// notifications when either changes.
//
// # File Organization
//
//   - watch.go: the bubbletea model and its polling loop
//   - styles.go: lipgloss styles and state colors
//   - notifications.go: desktop notifications over D-Bus
package ui
