package socketmux

import "context"

// Server drives a fixed pool of hardware sockets through the TCP lifecycle, the
// HTTP/WebSocket handshake and WebSocket message handling.
//
// All protocol work happens inside Run on a single goroutine. The remaining
// methods are safe to call from other goroutines while Run is active.
//
// Example usage:
//
//	import "github.com/luciancaetano/socketmux/ws"
//
//	cfg := ws.NewConfig(transport, ws.DefaultNetworkConfig(), ws.DefaultPort)
//	server := ws.New(cfg)
//
//	if err := server.Run(ctx); err != nil {
//	    log.Fatalf("server halted: %v", err)
//	}
type Server interface {
	// Run configures the transport, resets every socket and then polls the
	// session slots until a fatal error occurs or ctx is cancelled.
	//
	// Returns the fatal error, or ctx.Err() on cancellation. Returns an error
	// immediately if the server is already running.
	Run(ctx context.Context) error

	// CloseSession asks the server to start the WebSocket closing handshake on
	// the given slot with the given close code and optional reason.
	//
	// The request is served the next time the poll loop visits the slot. If the
	// slot has no open WebSocket at that point the request is dropped.
	//
	// Example:
	//
	//	server.CloseSession(3, websocket.CloseGoingAway, "maintenance")
	CloseSession(slot int, code int, reason string) error

	// Sessions returns a snapshot of every session slot in index order.
	Sessions() []SessionInfo
}

// Transport abstracts the TCP offload chip. Every method is non-blocking and
// returns immediately.
//
// Implementations are driven from a single goroutine and do not need to be
// safe for concurrent use.
type Transport interface {
	// Configure applies the network configuration (MAC, IP, subnet, gateway).
	Configure(cfg NetworkConfig) error

	// Reset switches the socket to TCP mode and disconnects it.
	Reset(s Socket) error

	// Status reads the socket status register. An unrecognized register value
	// is reported as ErrUnknownStatus.
	Status(s Socket) (SocketStatus, error)

	// Open opens the socket in TCP mode.
	Open(s Socket) error

	// Listen puts an initialized socket into listen mode on port.
	Listen(s Socket, port uint16) error

	// Close closes the socket and discards any unread bytes.
	Close(s Socket) error

	// Send queues p for transmission and returns how many bytes were accepted.
	// The count may be lower than len(p) when the TX buffer is short on space.
	Send(s Socket, p []byte) (int, error)

	// TryReceive copies unread bytes into p without consuming them. ok is
	// false when no bytes are available. Repeated calls return the same bytes
	// until Consume advances past them.
	TryReceive(s Socket, p []byte) (n int, ok bool, err error)

	// Consume marks the first n unread bytes as read, freeing their space in
	// the RX buffer.
	Consume(s Socket, n int) error

	// ReadRegisters reads the socket registers for diagnostics.
	ReadRegisters(s Socket) (Registers, error)
}

// DiagnosticTrigger reports whether verbose register dumps are requested. On
// the board this is a pull-up input held low.
type DiagnosticTrigger interface {
	Active() bool
}

// TriggerFunc adapts a function to DiagnosticTrigger.
type TriggerFunc func() bool

// Active implements DiagnosticTrigger.
func (f TriggerFunc) Active() bool { return f() }

// Registers is the diagnostic view of a socket's register block.
type Registers struct {
	Mode          byte
	Command       byte
	Status        byte
	Interrupt     byte
	Port          uint16
	InterruptMask byte
}

// WebSocketState is the WebSocket sub-state of a session.
type WebSocketState int

const (
	// WebSocketConnecting is the state before the opening handshake completes.
	WebSocketConnecting WebSocketState = iota
	// WebSocketOpen means frames may be exchanged.
	WebSocketOpen
	// WebSocketCloseSent means the server started the closing handshake.
	WebSocketCloseSent
	// WebSocketCloseReceived means the peer started the closing handshake and
	// is waiting for the reply.
	WebSocketCloseReceived
	// WebSocketClosed means the closing handshake finished.
	WebSocketClosed
)

func (s WebSocketState) String() string {
	switch s {
	case WebSocketConnecting:
		return "Connecting"
	case WebSocketOpen:
		return "Open"
	case WebSocketCloseSent:
		return "CloseSent"
	case WebSocketCloseReceived:
		return "CloseReceived"
	case WebSocketClosed:
		return "Closed"
	}
	return "Unknown"
}

// SessionInfo is a point-in-time view of one session slot.
type SessionInfo struct {
	Slot           int
	Socket         Socket
	Status         SocketStatus
	WebSocketState WebSocketState
	// ConnectionID identifies the current TCP connection. Empty while the
	// slot has no established connection.
	ConnectionID string
}
