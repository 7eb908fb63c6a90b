package wscodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/socketmux"
)

const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: 192.168.1.33:1337\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: keep-alive, Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Protocol: chat, superchat\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

// TestReadHTTPHeader tests routing information extracted from request headers
func TestReadHTTPHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		request       string
		wantPath      string
		wantWebSocket bool
		wantErr       error
	}{
		{
			name:     "root page",
			request:  "GET / HTTP/1.1\r\nHost: example\r\n\r\n",
			wantPath: "/",
		},
		{
			name:     "other page with query",
			request:  "GET /favicon.ico?v=2 HTTP/1.1\r\nHost: example\r\n\r\n",
			wantPath: "/favicon.ico",
		},
		{
			name:          "websocket upgrade",
			request:       upgradeRequest,
			wantPath:      "/chat",
			wantWebSocket: true,
		},
		{
			name:     "upgrade without key",
			request:  strings.Replace(upgradeRequest, "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n", "", 1),
			wantPath: "/chat",
			wantErr:  ErrMissingWebSocketKey,
		},
		{
			name:     "upgrade with old version",
			request:  strings.Replace(upgradeRequest, "Version: 13", "Version: 8", 1),
			wantPath: "/chat",
			wantErr:  ErrBadWebSocketVersion,
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hdr, err := ReadHTTPHeader([]byte(tt.request))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantPath, hdr.Path)
			require.Equal(t, tt.wantWebSocket, hdr.WebSocket != nil)
		})
	}
}

// TestReadHTTPHeaderUpgradeContext tests the handshake parameters
func TestReadHTTPHeaderUpgradeContext(t *testing.T) {
	t.Parallel()

	hdr, err := ReadHTTPHeader([]byte(upgradeRequest))
	require.NoError(t, err)
	require.NotNil(t, hdr.WebSocket)
	require.Equal(t, "dGhlIHNhbXBsZSBub25jZQ==", hdr.WebSocket.Key)
	require.Equal(t, []string{"chat", "superchat"}, hdr.WebSocket.Protocols)
}

// TestReadHTTPHeaderMalformed tests that garbage and partial headers are rejected
func TestReadHTTPHeaderMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"not http at all",
		"GET / HTTP/1.1\r\nHost: exa",
	} {
		_, err := ReadHTTPHeader([]byte(raw))
		require.Error(t, err, "input %q", raw)
	}
}

// TestAcceptKey tests the RFC6455 section 1.3 example
func TestAcceptKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

// TestRespondToOpeningHandshake tests the 101 response and the state change
func TestRespondToOpeningHandshake(t *testing.T) {
	t.Parallel()

	w := NewServer()
	out := make([]byte, 256)
	n, err := w.RespondToOpeningHandshake("dGhlIHNhbXBsZSBub25jZQ==", "chat", out)
	require.NoError(t, err)

	resp := string(out[:n])
	require.True(t, strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n"))
	require.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	require.Contains(t, resp, "Sec-WebSocket-Protocol: chat\r\n")
	require.True(t, strings.HasSuffix(resp, "\r\n\r\n"))
	require.Equal(t, socketmux.WebSocketOpen, w.State())
}

// TestRespondToOpeningHandshakeBufferTooSmall tests that the state is untouched on failure
func TestRespondToOpeningHandshakeBufferTooSmall(t *testing.T) {
	t.Parallel()

	w := NewServer()
	_, err := w.RespondToOpeningHandshake("dGhlIHNhbXBsZSBub25jZQ==", "", make([]byte, 40))
	require.ErrorIs(t, err, ErrBufferTooSmall)
	require.Equal(t, socketmux.WebSocketConnecting, w.State())
}
