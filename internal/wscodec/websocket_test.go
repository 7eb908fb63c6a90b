package wscodec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/socketmux"
)

// clientFrame builds a masked client-to-server frame.
func clientFrame(opcode int, fin bool, payload []byte) []byte {
	mask := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	b0 := byte(opcode)
	if fin {
		b0 |= 0x80
	}
	out := []byte{b0}
	switch n := len(payload); {
	case n <= 125:
		out = append(out, 0x80|byte(n))
	case n <= 0xFFFF:
		out = append(out, 0x80|126, 0, 0)
		binary.BigEndian.PutUint16(out[2:], uint16(n))
	default:
		out = append(out, 0x80|127, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(out[2:], uint64(n))
	}
	out = append(out, mask[:]...)
	for i, b := range payload {
		out = append(out, b^mask[i%4])
	}
	return out
}

func closePayload(code uint16, reason string) []byte {
	p := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(p, code)
	return append(p, reason...)
}

func openSession(t *testing.T) *WebSocket {
	t.Helper()
	w := NewServer()
	_, err := w.RespondToOpeningHandshake("dGhlIHNhbXBsZSBub25jZQ==", "", make([]byte, 256))
	require.NoError(t, err)
	require.Equal(t, socketmux.WebSocketOpen, w.State())
	return w
}

// TestRead tests decoding of every frame type against an open session
func TestRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		frame     []byte
		wantType  ReceiveType
		wantData  []byte
		wantState socketmux.WebSocketState
	}{
		{
			name:      "text",
			frame:     clientFrame(websocket.TextMessage, true, []byte("hello")),
			wantType:  ReceiveText,
			wantData:  []byte("hello"),
			wantState: socketmux.WebSocketOpen,
		},
		{
			name:      "binary",
			frame:     clientFrame(websocket.BinaryMessage, true, []byte{0x00, 0xFF, 0x10}),
			wantType:  ReceiveBinary,
			wantData:  []byte{0x00, 0xFF, 0x10},
			wantState: socketmux.WebSocketOpen,
		},
		{
			name:      "ping",
			frame:     clientFrame(websocket.PingMessage, true, []byte("are you there")),
			wantType:  ReceivePing,
			wantData:  []byte("are you there"),
			wantState: socketmux.WebSocketOpen,
		},
		{
			name:      "pong",
			frame:     clientFrame(websocket.PongMessage, true, nil),
			wantType:  ReceivePong,
			wantData:  []byte{},
			wantState: socketmux.WebSocketOpen,
		},
		{
			name:      "close with reason",
			frame:     clientFrame(websocket.CloseMessage, true, closePayload(1000, "bye")),
			wantType:  ReceiveCloseMustReply,
			wantData:  closePayload(1000, "bye"),
			wantState: socketmux.WebSocketCloseReceived,
		},
		{
			name:      "medium text uses 16-bit length",
			frame:     clientFrame(websocket.TextMessage, true, bytes.Repeat([]byte("a"), 300)),
			wantType:  ReceiveText,
			wantData:  bytes.Repeat([]byte("a"), 300),
			wantState: socketmux.WebSocketOpen,
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := openSession(t)
			out := make([]byte, 500)
			res, err := w.Read(tt.frame, out)
			require.NoError(t, err)
			require.Equal(t, tt.wantType, res.Type)
			require.Equal(t, len(tt.frame), res.FrameLen)
			require.Equal(t, tt.wantData, out[:res.N])
			require.True(t, res.EndOfMessage)
			require.Equal(t, tt.wantState, w.State())
		})
	}
}

// TestReadCloseStatus tests that the close status is decoded from the payload
func TestReadCloseStatus(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	out := make([]byte, 500)
	res, err := w.Read(clientFrame(websocket.CloseMessage, true, closePayload(1001, "going")), out)
	require.NoError(t, err)
	require.True(t, res.HasCloseStatus)
	require.Equal(t, uint16(1001), res.CloseStatus)

	w = openSession(t)
	res, err = w.Read(clientFrame(websocket.CloseMessage, true, nil), out)
	require.NoError(t, err)
	require.Equal(t, ReceiveCloseMustReply, res.Type)
	require.False(t, res.HasCloseStatus)
}

// TestReadErrors tests malformed and unsupported frames
func TestReadErrors(t *testing.T) {
	t.Parallel()

	unmasked := clientFrame(websocket.TextMessage, true, []byte("hi"))
	unmasked[1] &^= 0x80

	reserved := clientFrame(websocket.TextMessage, true, []byte("hi"))
	reserved[0] |= 0x40

	tests := []struct {
		name    string
		frame   []byte
		outSize int
		wantErr error
	}{
		{"empty", nil, 500, ErrFrameIncomplete},
		{"header only", []byte{0x81}, 500, ErrFrameIncomplete},
		{"truncated payload", clientFrame(websocket.TextMessage, true, []byte("hello"))[:8], 500, ErrFrameIncomplete},
		{"unmasked", unmasked, 500, ErrUnmaskedFrame},
		{"reserved bits", reserved, 500, ErrReservedBits},
		{"unknown opcode", clientFrame(0x3, true, nil), 500, ErrUnknownOpcode},
		{"fragmented ping", clientFrame(websocket.PingMessage, false, nil), 500, ErrFragmentedControl},
		{"long ping", clientFrame(websocket.PingMessage, true, make([]byte, 126)), 500, ErrControlTooLong},
		{"payload larger than buffer", clientFrame(websocket.BinaryMessage, true, make([]byte, 64)), 32, ErrPayloadTooLarge},
		{"one byte close", clientFrame(websocket.CloseMessage, true, []byte{0x03}), 500, ErrInvalidClosePayload},
		{"stray continuation", clientFrame(0x0, true, []byte("x")), 500, ErrUnexpectedContinuation},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := openSession(t)
			_, err := w.Read(tt.frame, make([]byte, tt.outSize))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestReadBeforeHandshake tests that frames are rejected until the session is open
func TestReadBeforeHandshake(t *testing.T) {
	t.Parallel()

	w := NewServer()
	_, err := w.Read(clientFrame(websocket.TextMessage, true, []byte("hi")), make([]byte, 16))
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestReadFragmented tests continuation frames inherit the message type
func TestReadFragmented(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	out := make([]byte, 16)

	res, err := w.Read(clientFrame(websocket.TextMessage, false, []byte("hel")), out)
	require.NoError(t, err)
	require.Equal(t, ReceiveText, res.Type)
	require.False(t, res.EndOfMessage)

	_, err = w.Read(clientFrame(websocket.BinaryMessage, true, []byte("x")), out)
	require.ErrorIs(t, err, ErrExpectedContinuation)

	res, err = w.Read(clientFrame(0x0, true, []byte("lo")), out)
	require.NoError(t, err)
	require.Equal(t, ReceiveText, res.Type)
	require.True(t, res.EndOfMessage)
	require.Equal(t, "lo", string(out[:res.N]))
}

// TestWrite tests server frame encoding
func TestWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sendType   SendType
		payload    []byte
		wantHeader []byte
	}{
		{"text", SendText, []byte("hello"), []byte{0x81, 5}},
		{"binary", SendBinary, []byte{1, 2, 3}, []byte{0x82, 3}},
		{"ping", SendPing, nil, []byte{0x89, 0}},
		{"pong", SendPong, []byte("p"), []byte{0x8A, 1}},
		{"extended length", SendText, bytes.Repeat([]byte("z"), 200), []byte{0x81, 126, 0, 200}},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := openSession(t)
			out := make([]byte, 512)
			n, err := w.Write(tt.sendType, true, tt.payload, out)
			require.NoError(t, err)
			require.Equal(t, len(tt.wantHeader)+len(tt.payload), n)
			require.Equal(t, tt.wantHeader, out[:len(tt.wantHeader)])
			require.Equal(t, tt.payload, out[len(tt.wantHeader):n])
		})
	}
}

// TestWriteBufferTooSmall tests that encoding never overruns the output buffer
func TestWriteBufferTooSmall(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	_, err := w.Write(SendText, true, make([]byte, 10), make([]byte, 11))
	require.ErrorIs(t, err, ErrBufferTooSmall)

	n, err := w.Write(SendText, true, make([]byte, 10), make([]byte, 12))
	require.NoError(t, err)
	require.Equal(t, 12, n)
}

// TestWriteFragmented tests that a fragmented message continues with continuation frames
func TestWriteFragmented(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	out := make([]byte, 16)

	_, err := w.Write(SendText, false, []byte("ab"), out)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), out[0])

	_, err = w.Write(SendText, true, []byte("cd"), out)
	require.NoError(t, err)
	require.Equal(t, byte(0x80), out[0])

	_, err = w.Write(SendText, true, []byte("ef"), out)
	require.NoError(t, err)
	require.Equal(t, byte(0x81), out[0])
}

// TestCloseHandshakePeerInitiated tests the reply path of the closing handshake
func TestCloseHandshakePeerInitiated(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	payload := make([]byte, 500)
	res, err := w.Read(clientFrame(websocket.CloseMessage, true, closePayload(1000, "done")), payload)
	require.NoError(t, err)
	require.Equal(t, ReceiveCloseMustReply, res.Type)

	_, err = w.Write(SendText, true, []byte("late"), make([]byte, 16))
	require.ErrorIs(t, err, ErrInvalidState)

	out := make([]byte, 16)
	n, err := w.Write(SendCloseReply, true, payload[:res.N], out)
	require.NoError(t, err)
	require.Equal(t, byte(0x88), out[0])
	require.Equal(t, closePayload(1000, "done"), out[2:n])
	require.Equal(t, socketmux.WebSocketClosed, w.State())
}

// TestCloseHandshakeServerInitiated tests that the peer's reply completes the handshake
func TestCloseHandshakeServerInitiated(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")
	_, err := w.Write(SendCloseInitiated, true, msg, make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, socketmux.WebSocketCloseSent, w.State())

	res, err := w.Read(clientFrame(websocket.CloseMessage, true, closePayload(websocket.CloseGoingAway, "")), make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, ReceiveCloseCompleted, res.Type)
	require.Equal(t, uint16(websocket.CloseGoingAway), res.CloseStatus)
	require.Equal(t, socketmux.WebSocketClosed, w.State())
}

// TestReset tests that a reset session waits for a new handshake
func TestReset(t *testing.T) {
	t.Parallel()

	w := openSession(t)
	w.Reset()
	require.Equal(t, socketmux.WebSocketConnecting, w.State())
}
