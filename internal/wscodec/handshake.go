package wscodec

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"

	"github.com/luciancaetano/socketmux"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var ErrBufferTooSmall = errors.New("output buffer too small")

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// RespondToOpeningHandshake writes the 101 Switching Protocols response for
// key into to and returns its length. subProtocol is echoed when non-empty.
// The session becomes Open.
func (w *WebSocket) RespondToOpeningHandshake(key, subProtocol string, to []byte) (int, error) {
	n := 0
	for _, part := range []string{
		"HTTP/1.1 101 Switching Protocols\r\n",
		"Connection: Upgrade\r\n",
		"Upgrade: websocket\r\n",
		"Sec-WebSocket-Accept: ", AcceptKey(key), "\r\n",
	} {
		if n+len(part) > len(to) {
			return 0, ErrBufferTooSmall
		}
		n += copy(to[n:], part)
	}
	if subProtocol != "" {
		line := "Sec-WebSocket-Protocol: " + subProtocol + "\r\n"
		if n+len(line) > len(to) {
			return 0, ErrBufferTooSmall
		}
		n += copy(to[n:], line)
	}
	if n+2 > len(to) {
		return 0, ErrBufferTooSmall
	}
	n += copy(to[n:], "\r\n")

	w.reset()
	w.state = socketmux.WebSocketOpen
	return n, nil
}
