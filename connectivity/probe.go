package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yllada/vpn-bridge/common"
)

// probeNetwork is the single network the probing monitor reports.
var probeNetwork = Network{ID: "probe", Name: "reachability probe", Internet: true}

var errUnreachable = errors.New("no probe host reachable")

// ProbeConfig holds configuration for the probing monitor.
type ProbeConfig struct {
	// Interval is how often to probe.
	Interval time.Duration
	// Timeout bounds a single dial.
	Timeout time.Duration
	// FailureThreshold is how many consecutive failed rounds mark the
	// network lost.
	FailureThreshold int
	// Hosts are host:port pairs dialed over TCP.
	Hosts []string
}

// DefaultProbeConfig returns sensible defaults for probing.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Interval:         common.ProbeInterval,
		Timeout:          common.ProbeTimeout,
		FailureThreshold: 2,
		Hosts: []string{
			"1.1.1.1:443", // Cloudflare
			"8.8.8.8:443", // Google
		},
	}
}

// Dialer opens probe connections. A net.Dialer whose Control protects the
// socket keeps probes outside the tunnel.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeMonitor reports connectivity by periodically dialing well-known
// hosts. It is used where no network manager is available.
type ProbeMonitor struct {
	mu       sync.RWMutex
	config   ProbeConfig
	dialer   Dialer
	callback Callback
	running  bool
	stopChan chan struct{}
	done     chan struct{}

	reachable        bool
	consecutiveFails int
	lastCheck        time.Time
	latency          time.Duration
}

// NewProbeMonitor creates a probing monitor. A nil dialer dials directly.
func NewProbeMonitor(config ProbeConfig, dialer Dialer) *ProbeMonitor {
	defaults := DefaultProbeConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &ProbeMonitor{config: config, dialer: dialer}
}

// Register runs a first probe synchronously, then keeps probing in the
// background until Unregister.
func (pm *ProbeMonitor) Register(ctx context.Context, cb Callback) error {
	if len(pm.config.Hosts) == 0 {
		return fmt.Errorf("%w: no probe hosts", common.ErrInvalidConfig)
	}

	pm.mu.Lock()
	if pm.running {
		pm.mu.Unlock()
		return common.ErrAlreadyStarted
	}
	pm.running = true
	pm.callback = cb
	pm.stopChan = make(chan struct{})
	pm.done = make(chan struct{})
	pm.reachable = false
	pm.consecutiveFails = 0
	stop, done := pm.stopChan, pm.done
	pm.mu.Unlock()

	common.LogInfo("Probe monitor started (interval: %v)", pm.config.Interval)

	pm.check(ctx)
	go pm.runLoop(stop, done)
	return nil
}

// Unregister stops probing and waits for an in-flight probe to finish.
func (pm *ProbeMonitor) Unregister() error {
	pm.mu.Lock()
	if !pm.running {
		pm.mu.Unlock()
		return nil
	}
	pm.running = false
	close(pm.stopChan)
	done := pm.done
	pm.mu.Unlock()

	<-done
	common.LogInfo("Probe monitor stopped")
	return nil
}

// IsRunning returns whether the monitor is currently probing.
func (pm *ProbeMonitor) IsRunning() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.running
}

// Latency returns the duration of the last successful probe.
func (pm *ProbeMonitor) Latency() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.latency
}

// runLoop is the main probing loop.
func (pm *ProbeMonitor) runLoop(stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	ticker := time.NewTicker(pm.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pm.check(ctx)
		}
	}
}

// check runs one probe round and reports transitions.
func (pm *ProbeMonitor) check(ctx context.Context) {
	latency, err := pm.testConnectivity(ctx)
	if ctx.Err() != nil {
		return
	}

	pm.mu.Lock()
	pm.lastCheck = time.Now()
	wasReachable := pm.reachable

	if err != nil {
		pm.consecutiveFails++
		pm.latency = 0
		common.LogDebug("Probe failed (%d/%d): %v", pm.consecutiveFails, pm.config.FailureThreshold, err)
		if pm.consecutiveFails >= pm.config.FailureThreshold {
			pm.reachable = false
		}
	} else {
		pm.consecutiveFails = 0
		pm.latency = latency
		pm.reachable = true
	}
	reachable := pm.reachable
	cb := pm.callback
	pm.mu.Unlock()

	if reachable == wasReachable || cb == nil {
		return
	}
	if reachable {
		cb.OnAvailable(probeNetwork)
	} else {
		cb.OnLost(probeNetwork)
	}
}

// testConnectivity dials each host until one succeeds.
func (pm *ProbeMonitor) testConnectivity(ctx context.Context) (time.Duration, error) {
	for _, host := range pm.config.Hosts {
		dctx, cancel := context.WithTimeout(ctx, pm.config.Timeout)
		start := time.Now()
		conn, err := pm.dialer.DialContext(dctx, "tcp", host)
		cancel()
		if err == nil {
			conn.Close()
			return time.Since(start), nil
		}
	}
	return 0, errUnreachable
}
