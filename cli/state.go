package cli

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yllada/vpn-bridge/api"
	"github.com/yllada/vpn-bridge/tunnel"
)

func newStateCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the persisted tunnel state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := openBackend(ctx, a.cfg.Storage)
			if err != nil {
				return err
			}
			defer backend.Close()

			codec := tunnel.Codec{RetainEndpoint: a.cfg.Storage.RetainEndpoint}
			state, err := tunnel.NewStore(backend, codec).Read(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			return printState(cmd, state)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the state as JSON")
	cmd.AddCommand(newStatePublishCommand(a))
	return cmd
}

func printState(cmd *cobra.Command, s tunnel.State) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STATE\t%s\n", s.Kind)
	if s.Endpoint != nil {
		fmt.Fprintf(w, "ENDPOINT\t%s\n", s.Endpoint)
		fmt.Fprintf(w, "TUNNEL\t%s\n", s.Endpoint.TunnelType)
	}
	if s.Location != nil {
		fmt.Fprintf(w, "LOCATION\t%s, %s\n", s.Location.City, s.Location.Country)
	}
	if s.Kind == tunnel.Disconnecting {
		fmt.Fprintf(w, "AFTER\t%s\n", s.AfterDisconnect)
	}
	if s.Kind == tunnel.Error {
		fmt.Fprintf(w, "CAUSE\t%s\n", s.Cause)
		fmt.Fprintf(w, "BLOCKING\t%t\n", s.Blocking)
	}
	return w.Flush()
}

// publishFlags are the fields of a state given on the command line.
type publishFlags struct {
	endpoint   string
	protocol   string
	tunnelType string
	country    string
	city       string
	hostname   string
	after      string
	cause      string
	blocking   bool
}

func (f publishFlags) state(kind tunnel.Kind) (tunnel.State, error) {
	s := tunnel.State{Kind: kind}
	if kind == tunnel.Error {
		s.Cause = tunnel.ErrorCause(f.cause)
		s.Blocking = f.blocking
	}

	if f.endpoint != "" {
		addr, err := netip.ParseAddrPort(f.endpoint)
		if err != nil {
			return tunnel.State{}, fmt.Errorf("endpoint: %w", err)
		}
		s.Endpoint = &tunnel.Endpoint{
			Address:    addr,
			Protocol:   tunnel.TransportProtocol(f.protocol),
			TunnelType: tunnel.TunnelType(f.tunnelType),
		}
	}
	if f.country != "" || f.city != "" || f.hostname != "" {
		s.Location = &tunnel.Location{Country: f.country, City: f.city, Hostname: f.hostname}
	}
	if kind == tunnel.Disconnecting {
		action, err := tunnel.ParseAction(f.after)
		if err != nil {
			return tunnel.State{}, err
		}
		s.AfterDisconnect = action
	}

	return s, s.Validate()
}

func newStatePublishCommand(a *app) *cobra.Command {
	var (
		f    publishFlags
		addr string
	)

	cmd := &cobra.Command{
		Use:       "publish <disconnected|connecting|connected|disconnecting|error>",
		Short:     "Publish a tunnel state on a running daemon's engine",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"disconnected", "connecting", "connected", "disconnecting", "error"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := tunnel.ParseKind(args[0])
			if err != nil {
				return err
			}
			state, err := f.state(kind)
			if err != nil {
				return err
			}
			address, err := a.apiAddress(addr)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			if err := api.NewClient(address).PublishTunnelState(ctx, state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Published %s\n", state)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address (defaults to the configured one)")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Relay address as ip:port")
	cmd.Flags().StringVar(&f.protocol, "protocol", string(tunnel.UDP), "Transport protocol (udp, tcp)")
	cmd.Flags().StringVar(&f.tunnelType, "tunnel-type", string(tunnel.WireGuard), "Tunnel type (wireguard, openvpn)")
	cmd.Flags().StringVar(&f.country, "country", "", "Relay country")
	cmd.Flags().StringVar(&f.city, "city", "", "Relay city")
	cmd.Flags().StringVar(&f.hostname, "hostname", "", "Relay hostname")
	cmd.Flags().StringVar(&f.after, "after", "", "Action after disconnect (nothing, block, reconnect)")
	cmd.Flags().StringVar(&f.cause, "cause", "", "Error cause")
	cmd.Flags().BoolVar(&f.blocking, "blocking", false, "Whether the error state still blocks traffic")
	return cmd
}
