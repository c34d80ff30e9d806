//go:build !unix

package tundevice

import "github.com/yllada/vpn-bridge/common"

// Detach is not supported on this platform.
func (d *Device) Detach() (int, error) {
	return -1, common.ErrUnsupportedPlatform
}
