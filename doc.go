// Package socketmux serves HTTP and WebSocket clients from a TCP offload chip
// with a fixed pool of eight hardware sockets.
//
// Every socket listens on the same port. A single cooperative poll loop
// visits the sockets in index order and, per visit, performs at most one TCP
// lifecycle action or one receive/dispatch/write sequence:
//
//	Closed, CloseWait  -> open the socket
//	Init               -> listen on the configured port
//	Established        -> receive, then route to HTTP or WebSocket handling
//	other TCP states   -> wait
//
// The first request on a connection is parsed as HTTP. A WebSocket upgrade
// request is answered with the opening handshake and the connection switches
// to frame handling; "/" is answered with the built-in page and anything else
// with 404. Plain HTTP connections are closed after the response.
//
// WebSocket text messages are echoed, pings answered with pongs and close
// frames answered with a close reply followed by a TCP close. Binary messages
// and pongs are dropped.
//
// # Buffers
//
// All sockets share two buffers: a raw buffer for bytes received from and
// sent to the chip, and a payload buffer for decoded WebSocket payloads.
// Replies are encoded back into the raw buffer.
//
// # Errors
//
// Errors carry an ErrorKind. Transport errors always stop the server. By
// default the server uses the ContainSessionErrors policy: protocol and
// encoding errors close only the offending session and the other sockets keep
// running. The FailFast policy is opt-in and stops the server on any error.
//
// A header or frame cut off at the end of a receive is not an error. Its bytes
// stay unread in the transport until the rest arrives. Only a single header or
// frame larger than the raw buffer is reported, as a protocol error.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/socketmux/ws"
//	)
//
//	transport := ws.NewHostTransport(&ws.HostTransportConfig{Addr: ":1337"})
//	defer transport.Shutdown()
//
//	server := ws.New(ws.NewConfig(transport, ws.DefaultNetworkConfig(), ws.DefaultPort))
//	if err := server.Run(ctx); err != nil {
//	    log.Printf("server halted: %v", err)
//	}
//
// On hardware, implement Transport over the chip driver and pass it to
// ws.NewConfig instead.
package socketmux
