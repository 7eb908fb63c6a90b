package socketmux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseSocketStatus tests that every chip status value is recognized
func TestParseSocketStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  byte
		want SocketStatus
		name string
	}{
		{0x00, StatusClosed, "Closed"},
		{0x13, StatusInit, "Init"},
		{0x14, StatusListen, "Listen"},
		{0x15, StatusSynSent, "SynSent"},
		{0x16, StatusSynRecv, "SynRecv"},
		{0x17, StatusEstablished, "Established"},
		{0x18, StatusFinWait, "FinWait"},
		{0x1A, StatusClosing, "Closing"},
		{0x1B, StatusTimeWait, "TimeWait"},
		{0x1C, StatusCloseWait, "CloseWait"},
		{0x1D, StatusLastAck, "LastAck"},
		{0x22, StatusUDP, "Udp"},
		{0x42, StatusMACRaw, "MacRaw"},
	}

	for _, tt := range tests {
		got, ok := ParseSocketStatus(tt.raw)
		require.True(t, ok, "%#x", tt.raw)
		require.Equal(t, tt.want, got)
		require.Equal(t, tt.name, got.String())
	}
}

// TestParseSocketStatusUnknown tests values the chip never reports
func TestParseSocketStatusUnknown(t *testing.T) {
	t.Parallel()

	for _, raw := range []byte{0x01, 0x12, 0x19, 0x1E, 0x99, 0xFF} {
		got, ok := ParseSocketStatus(raw)
		require.False(t, ok, "%#x", raw)
		require.Contains(t, got.String(), "Unknown")
	}
}

func TestSocketString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Socket0", Socket(0).String())
	require.Equal(t, "Socket7", Socket(7).String())
}
