package socketmux

import (
	"net"
	"net/netip"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestDefaultNetworkConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultNetworkConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "192.168.1.33", cfg.IP.String())
	require.Equal(t, "255.255.255.0", cfg.Subnet.String())
	require.Equal(t, "192.168.1.1", cfg.Gateway.String())
	require.Equal(t, "02:01:02:03:04:05", cfg.MAC.String())
}

// TestValidateReportsAllProblems tests that every bad field is reported at once
func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := NetworkConfig{
		IP:      netip.MustParseAddr("::1"),
		Subnet:  netip.MustParseAddr("255.0.255.0"),
		Gateway: netip.Addr{},
		MAC:     net.HardwareAddr{1, 2, 3},
	}
	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 4)
}

func TestIsContiguousMask(t *testing.T) {
	t.Parallel()

	for mask, want := range map[[4]byte]bool{
		{255, 255, 255, 0}:   true,
		{255, 255, 255, 255}: true,
		{0, 0, 0, 0}:         true,
		{255, 255, 240, 0}:   true,
		{255, 0, 255, 0}:     false,
		{0, 255, 255, 255}:   false,
	} {
		require.Equal(t, want, isContiguousMask(mask), "%v", mask)
	}
}
