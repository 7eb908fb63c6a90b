// Package wscodec implements the server side of RFC6455: HTTP header parsing,
// the opening handshake and frame decode/encode over caller-owned buffers.
//
// Nothing in this package allocates per frame. Decoding unmasks straight into
// the caller's payload buffer and encoding writes header and payload into the
// caller's output buffer.
package wscodec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/socketmux"
)

// opContinuation is not exported by gorilla/websocket.
const opContinuation = 0x0

// maxControlPayload is the largest payload a control frame may carry.
const maxControlPayload = 125

var (
	ErrFrameIncomplete        = errors.New("frame incomplete")
	ErrUnmaskedFrame          = errors.New("client frame is not masked")
	ErrReservedBits           = errors.New("reserved bits set")
	ErrUnknownOpcode          = errors.New("unknown opcode")
	ErrFragmentedControl      = errors.New("fragmented control frame")
	ErrControlTooLong         = errors.New("control frame payload exceeds 125 bytes")
	ErrUnexpectedContinuation = errors.New("continuation frame without a message in progress")
	ErrExpectedContinuation   = errors.New("data frame while a fragmented message is in progress")
	ErrPayloadTooLarge        = errors.New("payload exceeds buffer")
	ErrInvalidClosePayload    = errors.New("close payload of one byte")
	ErrInvalidState           = errors.New("operation not valid in current websocket state")
)

// ReceiveType tags a decoded frame.
type ReceiveType int

const (
	ReceiveText ReceiveType = iota + 1
	ReceiveBinary
	ReceivePing
	ReceivePong
	// ReceiveCloseMustReply is a close frame from the peer that must be
	// answered with SendCloseReply.
	ReceiveCloseMustReply
	// ReceiveCloseCompleted is the peer's answer to a close we initiated.
	ReceiveCloseCompleted
)

func (t ReceiveType) String() string {
	switch t {
	case ReceiveText:
		return "Text"
	case ReceiveBinary:
		return "Binary"
	case ReceivePing:
		return "Ping"
	case ReceivePong:
		return "Pong"
	case ReceiveCloseMustReply:
		return "CloseMustReply"
	case ReceiveCloseCompleted:
		return "CloseCompleted"
	}
	return fmt.Sprintf("ReceiveType(%d)", int(t))
}

// SendType tags a frame to encode.
type SendType int

const (
	SendText SendType = iota + 1
	SendBinary
	SendPing
	SendPong
	// SendCloseReply answers a ReceiveCloseMustReply.
	SendCloseReply
	// SendCloseInitiated starts the closing handshake.
	SendCloseInitiated
)

func (t SendType) String() string {
	switch t {
	case SendText:
		return "Text"
	case SendBinary:
		return "Binary"
	case SendPing:
		return "Ping"
	case SendPong:
		return "Pong"
	case SendCloseReply:
		return "CloseReply"
	case SendCloseInitiated:
		return "CloseInitiated"
	}
	return fmt.Sprintf("SendType(%d)", int(t))
}

// ReadResult describes one decoded frame.
type ReadResult struct {
	Type ReceiveType
	// FrameLen is the number of input bytes the frame occupied.
	FrameLen int
	// N is the number of payload bytes written to the output buffer.
	N            int
	EndOfMessage bool
	// Continuation is set when the frame continues a fragmented message.
	Continuation bool
	// CloseStatus is set for close frames that carry a status code.
	CloseStatus    uint16
	HasCloseStatus bool
}

// WebSocket is the server-role state of one WebSocket session.
type WebSocket struct {
	state socketmux.WebSocketState

	readContinuation  ReceiveType
	writeContinuation bool
}

// NewServer returns a session waiting for its opening handshake.
func NewServer() *WebSocket {
	return &WebSocket{state: socketmux.WebSocketConnecting}
}

// State reports the current WebSocket state.
func (w *WebSocket) State() socketmux.WebSocketState {
	return w.state
}

// Reset returns the session to Connecting, ready for a new handshake.
func (w *WebSocket) Reset() {
	w.reset()
	w.state = socketmux.WebSocketConnecting
}

func (w *WebSocket) reset() {
	w.readContinuation = 0
	w.writeContinuation = false
}

// Read decodes the frame at the start of from and unmasks its payload into
// to. Only the first frame in from is consumed; ReadResult.FrameLen tells how
// many bytes it used.
func (w *WebSocket) Read(from, to []byte) (ReadResult, error) {
	if w.state != socketmux.WebSocketOpen && w.state != socketmux.WebSocketCloseSent {
		return ReadResult{}, ErrInvalidState
	}
	if len(from) < 2 {
		return ReadResult{}, ErrFrameIncomplete
	}

	b0, b1 := from[0], from[1]
	fin := b0&0x80 != 0
	if b0&0x70 != 0 {
		return ReadResult{}, ErrReservedBits
	}
	opcode := int(b0 & 0x0F)
	if b1&0x80 == 0 {
		return ReadResult{}, ErrUnmaskedFrame
	}

	length := uint64(b1 & 0x7F)
	offset := 2
	switch length {
	case 126:
		if len(from) < offset+2 {
			return ReadResult{}, ErrFrameIncomplete
		}
		length = uint64(binary.BigEndian.Uint16(from[offset:]))
		offset += 2
	case 127:
		if len(from) < offset+8 {
			return ReadResult{}, ErrFrameIncomplete
		}
		length = binary.BigEndian.Uint64(from[offset:])
		offset += 8
	}

	if len(from) < offset+4 {
		return ReadResult{}, ErrFrameIncomplete
	}
	mask := from[offset : offset+4]
	offset += 4

	isControl := opcode >= websocket.CloseMessage
	if isControl {
		if !fin {
			return ReadResult{}, ErrFragmentedControl
		}
		if length > maxControlPayload {
			return ReadResult{}, ErrControlTooLong
		}
	}
	if length > uint64(len(to)) {
		return ReadResult{}, ErrPayloadTooLarge
	}
	n := int(length)
	if len(from)-offset < n {
		return ReadResult{}, ErrFrameIncomplete
	}
	for i := 0; i < n; i++ {
		to[i] = from[offset+i] ^ mask[i%4]
	}

	res := ReadResult{FrameLen: offset + n, N: n, EndOfMessage: fin}
	switch opcode {
	case opContinuation:
		if w.readContinuation == 0 {
			return ReadResult{}, ErrUnexpectedContinuation
		}
		res.Type = w.readContinuation
		res.Continuation = true
		if fin {
			w.readContinuation = 0
		}
	case websocket.TextMessage, websocket.BinaryMessage:
		if w.readContinuation != 0 {
			return ReadResult{}, ErrExpectedContinuation
		}
		res.Type = ReceiveBinary
		if opcode == websocket.TextMessage {
			res.Type = ReceiveText
		}
		if !fin {
			w.readContinuation = res.Type
		}
	case websocket.PingMessage:
		res.Type = ReceivePing
	case websocket.PongMessage:
		res.Type = ReceivePong
	case websocket.CloseMessage:
		if n == 1 {
			return ReadResult{}, ErrInvalidClosePayload
		}
		if n >= 2 {
			res.CloseStatus = binary.BigEndian.Uint16(to[:2])
			res.HasCloseStatus = true
		}
		if w.state == socketmux.WebSocketCloseSent {
			w.state = socketmux.WebSocketClosed
			res.Type = ReceiveCloseCompleted
		} else {
			w.state = socketmux.WebSocketCloseReceived
			res.Type = ReceiveCloseMustReply
		}
	default:
		return ReadResult{}, fmt.Errorf("%w: %#x", ErrUnknownOpcode, opcode)
	}
	return res, nil
}

// Write encodes from as a single unmasked frame of type t into to and returns
// the frame length. endOfMessage false starts or continues a fragmented data
// message. from and to must not overlap.
func (w *WebSocket) Write(t SendType, endOfMessage bool, from, to []byte) (int, error) {
	var opcode int
	switch t {
	case SendText, SendBinary:
		if w.state != socketmux.WebSocketOpen {
			return 0, ErrInvalidState
		}
		opcode = websocket.BinaryMessage
		if t == SendText {
			opcode = websocket.TextMessage
		}
		if w.writeContinuation {
			opcode = opContinuation
		}
	case SendPing, SendPong:
		if w.state != socketmux.WebSocketOpen && w.state != socketmux.WebSocketCloseSent {
			return 0, ErrInvalidState
		}
		opcode = websocket.PingMessage
		if t == SendPong {
			opcode = websocket.PongMessage
		}
	case SendCloseReply:
		if w.state != socketmux.WebSocketCloseReceived {
			return 0, ErrInvalidState
		}
		opcode = websocket.CloseMessage
	case SendCloseInitiated:
		if w.state != socketmux.WebSocketOpen {
			return 0, ErrInvalidState
		}
		opcode = websocket.CloseMessage
	default:
		return 0, fmt.Errorf("unknown send type %d", int(t))
	}

	isControl := opcode >= websocket.CloseMessage
	if isControl {
		endOfMessage = true
		if len(from) > maxControlPayload {
			return 0, ErrControlTooLong
		}
	}

	n := len(from)
	header := 2
	switch {
	case n > 0xFFFF:
		header += 8
	case n > 125:
		header += 2
	}
	if header+n > len(to) {
		return 0, ErrBufferTooSmall
	}

	b0 := byte(opcode)
	if endOfMessage {
		b0 |= 0x80
	}
	to[0] = b0
	switch header {
	case 2:
		to[1] = byte(n)
	case 4:
		to[1] = 126
		binary.BigEndian.PutUint16(to[2:], uint16(n))
	default:
		to[1] = 127
		binary.BigEndian.PutUint64(to[2:], uint64(n))
	}
	copy(to[header:header+n], from)

	if !isControl {
		w.writeContinuation = !endOfMessage
	}
	switch t {
	case SendCloseReply:
		w.state = socketmux.WebSocketClosed
	case SendCloseInitiated:
		w.state = socketmux.WebSocketCloseSent
	}
	return header + n, nil
}
