//go:build unix

package tundevice

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/yllada/vpn-bridge/common"
)

// Detach duplicates the descriptor for a raw handoff, typically to a native
// engine, and closes the Go side without running host cleanup. The receiver
// of the descriptor becomes responsible for it.
func (d *Device) Detach() (int, error) {
	raw := d.Fd()
	if raw < 0 {
		return -1, common.ErrDeviceUnavailable
	}
	fd, err := unix.Dup(raw)
	if err != nil {
		return -1, fmt.Errorf("dup tunnel descriptor: %w", err)
	}
	d.once.Do(func() {
		d.err = d.file.Close()
	})
	return fd, nil
}
