//go:build !linux

package tundevice

import (
	"net/netip"

	"github.com/yllada/vpn-bridge/common"
)

type unsupportedPlatform struct{}

// NewPlatform returns a platform whose operations all fail with
// common.ErrUnsupportedPlatform.
func NewPlatform(Options) Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) NewBuilder() (Builder, error) {
	return nil, common.ErrUnsupportedPlatform
}

func (unsupportedPlatform) Bypass(int) error {
	return common.ErrUnsupportedPlatform
}

// ResolvedDNS is only available on Linux.
type ResolvedDNS struct{}

// NewResolvedDNS returns common.ErrUnsupportedPlatform.
func NewResolvedDNS() (*ResolvedDNS, error) {
	return nil, common.ErrUnsupportedPlatform
}

func (*ResolvedDNS) SetLinkDNS(int, []netip.Addr) error { return common.ErrUnsupportedPlatform }
func (*ResolvedDNS) RevertLink(int) error               { return common.ErrUnsupportedPlatform }
func (*ResolvedDNS) Close() error                       { return nil }
