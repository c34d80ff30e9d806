package cli

import (
	"github.com/spf13/cobra"

	"github.com/yllada/vpn-bridge/common"
)

func newRunCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until interrupted",
		Long: `Run the bridge daemon.

The daemon persists every tunnel state the engine publishes, relays the
host's connectivity to the engine, and serves the local status API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.API.Listen = listen
			}
			ctx := cmd.Context()

			backend, err := openBackend(ctx, a.cfg.Storage)
			if err != nil {
				return err
			}
			defer backend.Close()

			common.LogInfo("Starting %s v%s (storage: %s, monitor: %s)",
				common.AppName, a.info.Version, a.cfg.Storage.Backend, a.cfg.Connectivity.Monitor)

			return newDaemon(a.cfg, backend, newMonitor(a.cfg)).run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "API listen address, empty to disable")
	return cmd
}
