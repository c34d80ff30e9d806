package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/tundevice"
)

func newTunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tun",
		Short: "Manage the tunnel interface",
	}
	cmd.AddCommand(newTunUpCommand(a))
	return cmd
}

func newTunUpCommand(a *app) *cobra.Command {
	var (
		name       string
		addresses  []string
		dnsServers []string
		routes     []string
		mtu        int
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create the tunnel interface and hold it until interrupted",
		Long: `Create the tunnel interface with the configured addresses, routes and
DNS servers, then hold it open until interrupted. Flags override the
configuration. Requires CAP_NET_ADMIN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc := a.cfg.Tunnel
			flags := cmd.Flags()
			if flags.Changed("name") {
				tc.Name = name
			}
			if flags.Changed("address") {
				tc.Addresses = addresses
			}
			if flags.Changed("dns") {
				tc.DNSServers = dnsServers
			}
			if flags.Changed("route") {
				tc.Routes = routes
			}
			if flags.Changed("mtu") {
				tc.MTU = mtu
			}

			cfg, err := tundevice.ParseConfig(tc.Addresses, tc.DNSServers, tc.Routes, tc.MTU)
			if err != nil {
				return err
			}

			var dns tundevice.DNSConfigurator
			if len(cfg.DNSServers) > 0 {
				resolved, err := tundevice.NewResolvedDNS()
				if err != nil {
					common.LogWarn("systemd-resolved unavailable, DNS servers not applied: %v", err)
				} else {
					defer resolved.Close()
					dns = resolved
				}
			}

			a.cfg.Tunnel = tc
			factory := tundevice.NewFactory(tundevice.NewPlatform(platformOptions(a.cfg, dns)))

			outcome := factory.CreateInterface(cfg)
			if outcome.Kind != tundevice.OutcomeSuccess {
				if !outcome.Retryable() {
					return fmt.Errorf("tunnel refused: %w", outcome.Err)
				}
				return fmt.Errorf("tunnel creation failed: %w", outcome.Err)
			}
			device := outcome.Device
			defer device.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s up (fd %d, mtu %d), press Ctrl+C to remove it\n",
				device.Name(), device.Fd(), cfg.MTU)

			start := time.Now()
			<-cmd.Context().Done()
			common.LogInfo("Removing %s after %s", device.Name(), formatDuration(time.Since(start)))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", common.DefaultTunnelName, "Interface name")
	flags.StringSliceVar(&addresses, "address", nil, "Interface address (repeatable)")
	flags.StringSliceVar(&dnsServers, "dns", nil, "DNS server (repeatable)")
	flags.StringSliceVar(&routes, "route", nil, "Route through the tunnel as CIDR (repeatable)")
	flags.IntVar(&mtu, "mtu", common.DefaultMTU, "Interface MTU")
	return cmd
}
