package socketmux

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestErrorKinds tests classification through wrapping
func TestErrorKinds(t *testing.T) {
	t.Parallel()

	base := errors.New("spi timeout")
	err := fmt.Errorf("pass: %w", NewError(TransportError, "send", 3, base))

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, TransportError, kind)
	require.True(t, IsKind(err, TransportError))
	require.False(t, IsKind(err, ProtocolError))
	require.ErrorIs(t, err, base)
	require.Equal(t, "pass: transport error: Socket3: send: spi timeout", err.Error())

	_, ok = KindOf(base)
	require.False(t, ok)
}

// TestNilErrors tests that wrapping nil yields nil
func TestNilErrors(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewError(ProtocolError, "decode", 0, nil))
	require.NoError(t, NewChipError(TransportError, "configure", nil))
}

// TestChipError tests errors not tied to a socket
func TestChipError(t *testing.T) {
	t.Parallel()

	err := NewChipError(TransportError, "configure", errors.New("no chip"))
	require.Equal(t, "transport error: configure: no chip", err.Error())
	require.True(t, IsKind(err, TransportError))
}
