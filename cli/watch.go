package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yllada/vpn-bridge/api"
	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/ui"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		addr     string
		interval time.Duration
		notify   bool
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running daemon's tunnel state and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := a.apiAddress(addr)
			if err != nil {
				return err
			}
			client := api.NewClient(address)

			if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
				return watchPlain(cmd.Context(), client, cmd.OutOrStdout(), interval)
			}

			opts := ui.WatchOptions{Interval: interval}
			if notify {
				notifier, err := ui.NewDesktopNotifier()
				if err != nil {
					common.LogWarn("Desktop notifications unavailable: %v", err)
				} else {
					defer notifier.Close()
					opts.Notifier = notifier
				}
			}
			return ui.Run(cmd.Context(), client, opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address (defaults to the configured one)")
	cmd.Flags().DurationVar(&interval, "interval", common.WatchInterval, "Polling interval")
	cmd.Flags().BoolVar(&notify, "notify", false, "Show desktop notifications on changes")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print one line per change instead of the interactive view")
	return cmd
}

// watchPlain prints a line each time the daemon's view changes, until ctx
// ends.
func watchPlain(ctx context.Context, source ui.Source, out io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = common.WatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		line := pollLine(ctx, source)
		if line != last {
			fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), line)
			last = line
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func pollLine(ctx context.Context, source ui.Source) string {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	state, err := source.TunnelState(ctx)
	if err != nil {
		return "error=" + fmt.Sprintf("%q", err.Error())
	}
	conn, err := source.Connectivity(ctx)
	if err != nil {
		return "error=" + fmt.Sprintf("%q", err.Error())
	}
	return ui.RenderPlain(state, conn)
}
