package wscodec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	ErrMissingWebSocketKey = errors.New("missing Sec-WebSocket-Key header")
	ErrBadWebSocketVersion = errors.New("unsupported WebSocket version; only '13' is supported")
)

// HTTPHeader is the subset of an HTTP request the server routes on.
type HTTPHeader struct {
	Path string
	// WebSocket is set when the request asks for a WebSocket upgrade.
	WebSocket *WebSocketContext
}

// WebSocketContext carries the client's opening handshake parameters.
type WebSocketContext struct {
	Key       string
	Protocols []string
}

// ReadHTTPHeader parses the request line and headers held in buf. The header
// block must be complete.
func ReadHTTPHeader(buf []byte) (HTTPHeader, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return HTTPHeader{}, fmt.Errorf("read http header: %w", err)
	}
	if req.Body != nil {
		req.Body.Close()
	}

	hdr := HTTPHeader{Path: req.URL.Path}
	if !websocket.IsWebSocketUpgrade(req) {
		return hdr, nil
	}

	if v := req.Header.Get("Sec-WebSocket-Version"); v != "13" {
		return hdr, ErrBadWebSocketVersion
	}
	key := strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return hdr, ErrMissingWebSocketKey
	}
	hdr.WebSocket = &WebSocketContext{
		Key:       key,
		Protocols: websocket.Subprotocols(req),
	}
	return hdr, nil
}
