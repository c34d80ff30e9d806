// Package main provides the entry point for the VPN bridge.
//
// The bridge sits between the host and a VPN engine: it creates the tunnel
// interface, relays the host's connectivity to the engine, and persists the
// tunnel state the engine publishes so the last known state survives
// restarts.
//
// Usage:
//
//	vpn-bridge run            run the daemon
//	vpn-bridge state          print the persisted tunnel state
//	vpn-bridge watch          follow a running daemon
//	vpn-bridge tun up         create the tunnel interface
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yllada/vpn-bridge/cli"
	"github.com/yllada/vpn-bridge/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	// Cancelled on SIGINT/SIGTERM so every command can shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.BuildInfo{
		Version:   appVersion,
		BuildTime: buildTime,
		Commit:    commitSHA,
	})

	err := root.ExecuteContext(ctx)
	common.CloseLogger()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
