package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yllada/vpn-bridge/api"
	"github.com/yllada/vpn-bridge/common"
	"github.com/yllada/vpn-bridge/config"
	"github.com/yllada/vpn-bridge/connectivity"
	"github.com/yllada/vpn-bridge/engine"
	"github.com/yllada/vpn-bridge/keyring"
	"github.com/yllada/vpn-bridge/storage"
	"github.com/yllada/vpn-bridge/tundevice"
	"github.com/yllada/vpn-bridge/tunnel"
)

// daemon wires the engine, the state store and the connectivity bridge.
type daemon struct {
	cfg     *config.Config
	store   *tunnel.Store
	engine  *engine.Local
	bridge  *connectivity.Bridge
	api     *api.Server
	started time.Time
}

// openBackend opens the configured state storage.
func openBackend(ctx context.Context, cfg config.StorageConfig) (common.KVStore, error) {
	switch cfg.Backend {
	case common.StorageKeyring:
		dir, err := common.GetDataDir()
		if err != nil {
			return nil, err
		}
		store, err := keyring.New(dir)
		if err != nil {
			return nil, err
		}
		if store.UsesLocalFile() {
			common.LogWarn("System keyring unavailable, tunnel state is kept in an encrypted file")
		}
		return store, nil
	default:
		return storage.Open(ctx, cfg.Path)
	}
}

// newMonitor returns the configured connectivity monitor.
func newMonitor(cfg *config.Config) connectivity.Monitor {
	if cfg.Connectivity.Monitor != common.MonitorProbe {
		return connectivity.NewNetworkManagerMonitor()
	}

	dialer := &net.Dialer{}
	if cfg.Connectivity.ProtectProbes {
		factory := tundevice.NewFactory(tundevice.NewPlatform(platformOptions(cfg, nil)))
		dialer.Control = factory.Control
	}
	return connectivity.NewProbeMonitor(connectivity.ProbeConfig{
		Interval: cfg.Connectivity.ProbeInterval,
		Timeout:  cfg.Connectivity.ProbeTimeout,
		Hosts:    cfg.Connectivity.ProbeHosts,
	}, dialer)
}

func platformOptions(cfg *config.Config, dns tundevice.DNSConfigurator) tundevice.Options {
	return tundevice.Options{
		Name:       cfg.Tunnel.Name,
		FwMark:     cfg.Tunnel.FwMark,
		RouteTable: cfg.Tunnel.RouteTable,
		DNS:        dns,
	}
}

// newDaemon assembles the daemon over backend and monitor. The caller
// closes backend after run returns.
func newDaemon(cfg *config.Config, backend common.KVStore, monitor connectivity.Monitor) *daemon {
	eng := engine.NewLocal()
	d := &daemon{
		cfg:     cfg,
		store:   tunnel.NewStore(backend, tunnel.Codec{RetainEndpoint: cfg.Storage.RetainEndpoint}),
		engine:  eng,
		bridge:  connectivity.NewBridge(eng, monitor),
	}
	if cfg.API.Listen != "" {
		d.api = api.NewServer(api.Deps{
			States:       d.store,
			Publisher:    eng,
			Connectivity: d.bridge,
			Engine:       eng,
		}, api.ServerOptions{Addr: cfg.API.Listen})
	}
	return d
}

// run starts every component and blocks until ctx ends or the state
// synchronizer fails.
func (d *daemon) run(ctx context.Context) error {
	d.started = time.Now()

	initial, err := d.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read persisted tunnel state: %w", err)
	}
	common.LogInfo("Persisted tunnel state: %s", initial)

	sub := d.store.Subscribe(func(s tunnel.State) {
		common.WithFields(map[string]interface{}{
			"state":    s.Kind.String(),
			"endpoint": endpointField(s),
		}).Info("Tunnel state persisted")
	})
	defer sub.Unsubscribe()

	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()

	// Subscribe before anything can publish.
	syncer, err := tunnel.NewSynchronizer(syncCtx, d.engine, d.store)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	syncErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncErr <- syncer.Run(syncCtx)
	}()

	if err := d.bridge.Start(ctx); err != nil {
		cancelSync()
		wg.Wait()
		return err
	}

	if d.api != nil {
		if err := d.api.Start(); err != nil {
			cancelSync()
			wg.Wait()
			return errors.Join(err, d.bridge.Stop())
		}
	}

	common.LogInfo("%s running", common.AppName)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-syncErr:
		// Storage errors are fatal.
		runErr = err
	}

	return errors.Join(runErr, d.shutdown(cancelSync, &wg))
}

// shutdown stops the components in reverse order.
func (d *daemon) shutdown(cancelSync context.CancelFunc, wg *sync.WaitGroup) error {
	common.LogInfo("Shutting down after %s", formatDuration(time.Since(d.started)))

	var errs []error
	if d.api != nil {
		if err := d.api.Stop(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("stop api: %w", err))
		}
	}
	if err := d.bridge.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop bridge: %w", err))
	}
	cancelSync()
	wg.Wait()
	if err := d.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	return errors.Join(errs...)
}

func endpointField(s tunnel.State) string {
	if s.Endpoint == nil {
		return "-"
	}
	return s.Endpoint.String()
}
