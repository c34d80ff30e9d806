package tundevice

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/yllada/vpn-bridge/common"
)

// ErrBypassFailed is returned by Control when a socket could not be exempted
// from the tunnel.
var ErrBypassFailed = errors.New("socket bypass failed")

// Factory creates tunnel interfaces and protects sockets through a Platform.
// It keeps no reference to the devices it creates.
type Factory struct {
	platform Platform
}

// NewFactory returns a Factory over platform.
func NewFactory(platform Platform) *Factory {
	return &Factory{platform: platform}
}

// CreateInterface builds and establishes an interface for cfg. On success
// the caller owns the returned device.
func (f *Factory) CreateInterface(cfg Config) Outcome {
	if err := cfg.Validate(); err != nil {
		return failure(err)
	}

	builder, err := f.platform.NewBuilder()
	if err != nil {
		return failure(err)
	}

	for _, addr := range cfg.Addresses {
		if err := builder.AddAddress(hostPrefix(addr)); err != nil {
			return failure(fmt.Errorf("add address %s: %w", addr, err))
		}
	}
	for _, dns := range cfg.DNSServers {
		if err := builder.AddDNSServer(dns); err != nil {
			return failure(fmt.Errorf("add dns server %s: %w", dns, err))
		}
	}
	for _, route := range cfg.Routes {
		if err := builder.AddRoute(route); err != nil {
			return failure(fmt.Errorf("add route %s: %w", route, err))
		}
	}
	if err := builder.SetMTU(cfg.MTU); err != nil {
		return failure(fmt.Errorf("set mtu: %w", err))
	}
	if err := builder.SetBlocking(false); err != nil {
		return failure(fmt.Errorf("set non-blocking: %w", err))
	}

	device, err := builder.Establish()
	if err != nil {
		return failure(fmt.Errorf("establish: %w", err))
	}
	if device == nil {
		return failure(common.ErrDeviceUnavailable)
	}

	common.LogInfo("Tunnel device %s established (mtu %d, %d routes)", device.Name(), cfg.MTU, len(cfg.Routes))
	return Outcome{Kind: OutcomeSuccess, Device: device}
}

func failure(err error) Outcome {
	if errors.Is(err, common.ErrPermissionDenied) {
		common.LogWarn("Tunnel device creation refused: %v", err)
		return Outcome{Kind: OutcomePermissionDenied, Err: err}
	}
	common.LogError("Tunnel device creation failed: %v", err)
	return Outcome{Kind: OutcomeDeviceError, Err: err}
}

// Bypass exempts the socket fd from the tunnel. It reports failure as false
// and never panics.
func (f *Factory) Bypass(fd int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError("Socket bypass panicked: %v", r)
			ok = false
		}
	}()

	if err := f.platform.Bypass(fd); err != nil {
		common.LogWarn("Failed to bypass socket %d: %v", fd, err)
		return false
	}
	return true
}

// Control matches net.Dialer.Control. It exempts every socket the dialer
// creates from the tunnel before it connects.
func (f *Factory) Control(network, address string, c syscall.RawConn) error {
	var ok bool
	if err := c.Control(func(fd uintptr) {
		ok = f.Bypass(int(fd))
	}); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrBypassFailed, network, address)
	}
	return nil
}
