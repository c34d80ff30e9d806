// Package cli provides the command-line interface of the VPN bridge: the
// daemon itself and the commands that inspect or drive a running one.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/config"
)

// BuildInfo carries the values injected at link time.
type BuildInfo struct {
	Version   string
	BuildTime string
	Commit    string
}

// app holds what the persistent flags resolve to.
type app struct {
	info       BuildInfo
	configPath string
	logLevel   string
	verbose    bool
	cfg        *config.Config
}

// NewRootCommand returns the vpn-bridge command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	a := &app{info: info}

	root := &cobra.Command{
		Use:           "vpn-bridge",
		Short:         "Tunnel lifecycle bridge between the host and a VPN engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the configuration file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newRunCommand(a),
		newStateCommand(a),
		newWatchCommand(a),
		newTunCommand(a),
		newVersionCommand(a),
	)
	return root
}

// setup loads the configuration and initializes the logger.
func (a *app) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	if err := common.InitLogger(cfg.LoggerConfig()); err != nil {
		common.LogWarn("Could not initialize file logging: %v", err)
	}
	return nil
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and exit",
		// The version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s v%s\n", common.AppName, a.info.Version)
			if a.info.BuildTime != "" && a.info.BuildTime != "unknown" {
				fmt.Fprintf(out, "  Build:  %s\n", a.info.BuildTime)
				fmt.Fprintf(out, "  Commit: %s\n", a.info.Commit)
			}
		},
	}
}

// apiAddress returns the address of the daemon's API: the flag value if
// set, the configured listen address otherwise.
func (a *app) apiAddress(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.API.Listen == "" {
		return "", fmt.Errorf("%w: the API is disabled in the configuration", common.ErrInvalidConfig)
	}
	return a.cfg.API.Listen, nil
}

// withTimeout bounds one-shot requests to a running daemon.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
