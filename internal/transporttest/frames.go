package transporttest

import (
	"encoding/binary"
	"fmt"
)

// Frame is a decoded server-to-client frame.
type Frame struct {
	Fin     bool
	Opcode  int
	Payload []byte
}

// ClientFrame encodes a masked client-to-server frame.
func ClientFrame(opcode int, payload []byte) []byte {
	mask := [4]byte{0xa1, 0x5c, 0x03, 0x7e}
	out := []byte{0x80 | byte(opcode)}
	switch n := len(payload); {
	case n <= 125:
		out = append(out, 0x80|byte(n))
	case n <= 0xFFFF:
		out = append(out, 0x80|126, byte(n>>8), byte(n))
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

// ClosePayload builds a close frame payload.
func ClosePayload(code uint16, reason string) []byte {
	p := binary.BigEndian.AppendUint16(nil, code)
	return append(p, reason...)
}

// ParseServerFrames splits unmasked server frames.
func ParseServerFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	for len(data) > 0 {
		if len(data) < 2 {
			return frames, fmt.Errorf("truncated frame header")
		}
		if data[1]&0x80 != 0 {
			return frames, fmt.Errorf("server frame is masked")
		}
		n := int(data[1] & 0x7F)
		off := 2
		switch n {
		case 126:
			n = int(binary.BigEndian.Uint16(data[2:]))
			off = 4
		case 127:
			n = int(binary.BigEndian.Uint64(data[2:]))
			off = 10
		}
		if len(data) < off+n {
			return frames, fmt.Errorf("truncated frame payload")
		}
		frames = append(frames, Frame{
			Fin:     data[0]&0x80 != 0,
			Opcode:  int(data[0] & 0x0F),
			Payload: append([]byte(nil), data[off:off+n]...),
		})
		data = data[off+n:]
	}
	return frames, nil
}

// UpgradeRequest returns a WebSocket opening handshake request for path.
func UpgradeRequest(path string) []byte {
	return []byte("GET " + path + " HTTP/1.1\r\n" +
		"Host: 192.168.1.33:1337\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n")
}

// GetRequest returns a plain HTTP GET request for path.
func GetRequest(path string) []byte {
	return []byte("GET " + path + " HTTP/1.1\r\nHost: 192.168.1.33:1337\r\n\r\n")
}
