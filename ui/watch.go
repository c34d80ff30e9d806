package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yllada/vpn-bridge/api"
	"github.com/yllada/vpn-bridge/common"
)

// Source is where the viewer reads from. *api.Client satisfies it.
type Source interface {
	TunnelState(ctx context.Context) (api.TunnelStateResponse, error)
	Connectivity(ctx context.Context) (api.ConnectivityResponse, error)
}

// WatchOptions configures the viewer.
type WatchOptions struct {
	// Interval between polls. Defaults to common.WatchInterval.
	Interval time.Duration
	// Notifier, if set, receives a notification on every change.
	Notifier Notifier
}

type snapshotMsg struct {
	state api.TunnelStateResponse
	conn  api.ConnectivityResponse
	at    time.Time
}

type errMsg struct{ err error }

type tickMsg time.Time

// Model is the bubbletea model of the status viewer.
type Model struct {
	source   Source
	opts     WatchOptions
	spinner  spinner.Model
	last     *snapshotMsg
	err      error
	width    int
	quitting bool
}

// NewModel returns a viewer model reading from source.
func NewModel(source Source, opts WatchOptions) Model {
	if opts.Interval <= 0 {
		opts.Interval = common.WatchInterval
	}
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)
	return Model{source: source, opts: opts, spinner: s}
}

// Init starts the spinner and the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetch(m.source, m.opts.Interval))
}

// fetch polls both endpoints. Each poll is bounded by interval, at least
// a second.
func fetch(source Source, interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		timeout := interval
		if timeout < time.Second {
			timeout = time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		state, err := source.TunnelState(ctx)
		if err != nil {
			return errMsg{err}
		}
		conn, err := source.Connectivity(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{state: state, conn: conn, at: time.Now()}
	}
}

func (m Model) scheduleNext() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetch(m.source, m.opts.Interval)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		if m.opts.Notifier != nil {
			for _, n := range transitionNotifications(m.last, &msg) {
				if err := m.opts.Notifier.Notify(n); err != nil {
					common.LogDebug("Notification failed: %v", err)
				}
			}
		}
		m.last = &msg
		m.err = nil
		return m, m.scheduleNext()

	case errMsg:
		m.err = msg.err
		return m, m.scheduleNext()

	case tickMsg:
		return m, fetch(m.source, m.opts.Interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the viewer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(common.AppName))
	b.WriteString("\n")

	switch {
	case m.last == nil && m.err == nil:
		b.WriteString(m.spinner.View() + " connecting to daemon...")
	case m.last == nil:
		b.WriteString(errorStyle.Render("daemon unreachable: " + m.err.Error()))
	default:
		b.WriteString(boxStyle.Render(renderSnapshot(*m.last)))
		if m.err != nil {
			b.WriteString("\n" + errorStyle.Render("stale: "+m.err.Error()))
		} else {
			b.WriteString("\n" + m.spinner.View() + dimStyle.Render(" updated "+m.last.at.Format("15:04:05")))
		}
	}

	b.WriteString(helpStyle.Render("r refresh • q quit"))
	return b.String()
}

func renderSnapshot(s snapshotMsg) string {
	state := s.state.State
	rows := [][2]string{
		{"Tunnel", stateStyle(state.Kind).Render(state.Kind.String())},
	}
	if state.Endpoint != nil {
		rows = append(rows, [2]string{"Endpoint", state.Endpoint.String()})
	}
	if state.Location != nil {
		loc := strings.Trim(fmt.Sprintf("%s, %s", state.Location.City, state.Location.Country), ", ")
		if state.Location.Hostname != "" {
			loc += " (" + state.Location.Hostname + ")"
		}
		rows = append(rows, [2]string{"Location", loc})
	}
	if state.Cause != "" {
		rows = append(rows, [2]string{"Cause", errorStyle.Render(string(state.Cause))})
	}

	online := "offline"
	if s.conn.Online {
		online = "online"
	}
	rows = append(rows, [2]string{"Connectivity", onlineStyle(s.conn.Online).Render(online)})

	engine := "no signal yet"
	if s.conn.EngineOnline != nil {
		engine = fmt.Sprintf("online=%t", *s.conn.EngineOnline)
	}
	rows = append(rows, [2]string{"Engine", engine})

	lines := make([]string, 0, len(rows)+len(s.conn.Networks))
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(r[0])+r[1])
	}
	for _, n := range s.conn.Networks {
		name := n.Name
		if name == "" {
			name = n.ID
		}
		lines = append(lines, labelStyle.Render("")+dimStyle.Render("• "+name))
	}
	return strings.Join(lines, "\n")
}

// Run shows the viewer until the user quits or ctx ends.
func Run(ctx context.Context, source Source, opts WatchOptions, progOpts ...tea.ProgramOption) error {
	progOpts = append([]tea.ProgramOption{tea.WithContext(ctx)}, progOpts...)
	_, err := tea.NewProgram(NewModel(source, opts), progOpts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RenderPlain formats one snapshot without styling, for non-terminal output.
func RenderPlain(state api.TunnelStateResponse, conn api.ConnectivityResponse) string {
	online := "offline"
	if conn.Online {
		online = "online"
	}
	names := make([]string, 0, len(conn.Networks))
	for _, n := range conn.Networks {
		names = append(names, n.ID)
	}
	return fmt.Sprintf("tunnel=%q connectivity=%s networks=[%s]",
		state.Summary, online, strings.Join(names, ","))
}
