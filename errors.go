package socketmux

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors raised while serving sessions.
type ErrorKind int

const (
	// TransportError is a failure of the serial bus or the chip.
	TransportError ErrorKind = iota + 1
	// ProtocolError is a malformed HTTP header, handshake or frame.
	ProtocolError
	// EncodingError is invalid UTF-8 in a text payload or close reason.
	EncodingError
)

func (k ErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport error"
	case ProtocolError:
		return "protocol error"
	case EncodingError:
		return "encoding error"
	}
	return "unknown error"
}

// Sentinel errors.
var (
	ErrUnknownStatus        = errors.New("unknown socket status")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrInvalidSlot          = errors.New("invalid session slot")
	ErrSessionNotOpen       = errors.New("websocket session is not open")
	ErrSendOverflow         = errors.New("transport accepted more bytes than offered")
)

// Error is a tagged error carrying the kind, the operation and the socket it
// was raised on.
type Error struct {
	Kind   ErrorKind
	Op     string
	Socket Socket
	// Chip is set for chip-wide operations that are not tied to Socket.
	Chip bool
	Err  error
}

func (e *Error) Error() string {
	if e.Chip {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Socket, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind, op and socket. A nil err yields nil.
func NewError(kind ErrorKind, op string, s Socket, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Socket: s, Err: err}
}

// NewChipError wraps err for a chip-wide operation. A nil err yields nil.
func NewChipError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Chip: true, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
