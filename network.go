package socketmux

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/hashicorp/go-multierror"
)

// NetworkConfig is the static network identity applied to the chip.
type NetworkConfig struct {
	IP      netip.Addr
	Subnet  netip.Addr
	Gateway netip.Addr
	MAC     net.HardwareAddr
}

// DefaultNetworkConfig returns the board's factory network identity.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		IP:      netip.AddrFrom4([4]byte{192, 168, 1, 33}),
		Subnet:  netip.AddrFrom4([4]byte{255, 255, 255, 0}),
		Gateway: netip.AddrFrom4([4]byte{192, 168, 1, 1}),
		MAC:     net.HardwareAddr{0x02, 0x01, 0x02, 0x03, 0x04, 0x05},
	}
}

// Validate checks every field and reports all problems at once.
func (c NetworkConfig) Validate() error {
	var result error
	for _, f := range []struct {
		name string
		addr netip.Addr
	}{
		{"ip", c.IP},
		{"subnet", c.Subnet},
		{"gateway", c.Gateway},
	} {
		if !f.addr.Is4() {
			result = multierror.Append(result, fmt.Errorf("%s: %q is not an IPv4 address", f.name, f.addr))
		}
	}
	if len(c.MAC) != 6 {
		result = multierror.Append(result, fmt.Errorf("mac: %q is not a 6 byte hardware address", c.MAC))
	}
	if c.Subnet.Is4() && !isContiguousMask(c.Subnet.As4()) {
		result = multierror.Append(result, errors.New("subnet: mask bits are not contiguous"))
	}
	return result
}

func isContiguousMask(b [4]byte) bool {
	m := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	inv := ^m
	return inv&(inv+1) == 0
}
