package mux

import (
	_ "embed"
	"strconv"
)

//go:embed index.html
var indexHTML []byte

const notFoundResponse = "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// pageResponse renders the canned 200 response for body. It is built once at
// startup so serving it never allocates.
func pageResponse(body []byte) []byte {
	hdr := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n"
	out := make([]byte, 0, len(hdr)+len(body))
	out = append(out, hdr...)
	return append(out, body...)
}
