// Package transporttest provides a scripted, in-memory socketmux.Transport for
// tests. Socket status follows the chip: Open moves Closed/CloseWait to Init,
// Listen moves Init to Listen and Close moves any state to Closed. Peers are
// simulated with Connect, Deliver and Hangup.
package transporttest

import (
	"fmt"
	"sync"

	"github.com/luciancaetano/socketmux"
)

// Call records one transport operation.
type Call struct {
	Op     string
	Socket socketmux.Socket
	// N is the byte count for Send, TryReceive and Consume, the port for
	// Listen.
	N int
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%s, %d)", c.Op, c.Socket, c.N)
}

type socketState struct {
	status    socketmux.SocketStatus
	unknown   bool
	statusErr error
	sendErr   error
	inbox     []byte
	sent      [][]byte
	regs      socketmux.Registers
	regsErr   error
}

// Transport is a fake socketmux.Transport.
type Transport struct {
	mu        sync.Mutex
	sockets   map[socketmux.Socket]*socketState
	calls     []Call
	network   *socketmux.NetworkConfig
	configErr error
	resetErr  error

	// SendLimit caps how many bytes a single Send accepts. Nil accepts all.
	SendLimit func(remaining int) int
}

// New returns a fake transport with every socket Closed.
func New() *Transport {
	return &Transport{sockets: make(map[socketmux.Socket]*socketState)}
}

func (t *Transport) socket(s socketmux.Socket) *socketState {
	st, ok := t.sockets[s]
	if !ok {
		st = &socketState{status: socketmux.StatusClosed}
		t.sockets[s] = st
	}
	return st
}

func (t *Transport) record(op string, s socketmux.Socket, n int) {
	t.calls = append(t.calls, Call{Op: op, Socket: s, N: n})
}

// Configure implements socketmux.Transport.
func (t *Transport) Configure(cfg socketmux.NetworkConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.configErr != nil {
		return t.configErr
	}
	t.network = &cfg
	return nil
}

// Reset implements socketmux.Transport.
func (t *Transport) Reset(s socketmux.Socket) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("reset", s, 0)
	if t.resetErr != nil {
		return t.resetErr
	}
	st := t.socket(s)
	st.status = socketmux.StatusClosed
	st.inbox = nil
	return nil
}

// Status implements socketmux.Transport.
func (t *Transport) Status(s socketmux.Socket) (socketmux.SocketStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("status", s, 0)
	st := t.socket(s)
	if st.statusErr != nil {
		return 0, st.statusErr
	}
	if st.unknown {
		return 0, socketmux.ErrUnknownStatus
	}
	status, ok := socketmux.ParseSocketStatus(byte(st.status))
	if !ok {
		return 0, fmt.Errorf("%w: %#x", socketmux.ErrUnknownStatus, byte(st.status))
	}
	return status, nil
}

// Open implements socketmux.Transport.
func (t *Transport) Open(s socketmux.Socket) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("open", s, 0)
	st := t.socket(s)
	st.status = socketmux.StatusInit
	st.inbox = nil
	return nil
}

// Listen implements socketmux.Transport.
func (t *Transport) Listen(s socketmux.Socket, port uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("listen", s, int(port))
	st := t.socket(s)
	if st.status != socketmux.StatusInit {
		return fmt.Errorf("listen on %s in state %s", s, st.status)
	}
	st.status = socketmux.StatusListen
	st.regs.Port = port
	return nil
}

// Close implements socketmux.Transport.
func (t *Transport) Close(s socketmux.Socket) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("close", s, 0)
	st := t.socket(s)
	st.status = socketmux.StatusClosed
	st.inbox = nil
	return nil
}

// Send implements socketmux.Transport.
func (t *Transport) Send(s socketmux.Socket, p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.socket(s)
	if st.sendErr != nil {
		t.record("send", s, 0)
		return 0, st.sendErr
	}
	n := len(p)
	if t.SendLimit != nil {
		n = min(n, t.SendLimit(len(p)))
	}
	t.record("send", s, n)
	st.sent = append(st.sent, append([]byte(nil), p[:n]...))
	return n, nil
}

// TryReceive implements socketmux.Transport.
func (t *Transport) TryReceive(s socketmux.Socket, p []byte) (int, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.socket(s)
	if len(st.inbox) == 0 {
		return 0, false, nil
	}
	n := copy(p, st.inbox)
	t.record("receive", s, n)
	return n, true, nil
}

// Consume implements socketmux.Transport.
func (t *Transport) Consume(s socketmux.Socket, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("consume", s, n)
	st := t.socket(s)
	if n < 0 || n > len(st.inbox) {
		return fmt.Errorf("consume %d of %d unread bytes on %s", n, len(st.inbox), s)
	}
	st.inbox = st.inbox[n:]
	if len(st.inbox) == 0 {
		st.inbox = nil
	}
	return nil
}

// ReadRegisters implements socketmux.Transport.
func (t *Transport) ReadRegisters(s socketmux.Socket) (socketmux.Registers, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("registers", s, 0)
	st := t.socket(s)
	if st.regsErr != nil {
		return socketmux.Registers{}, st.regsErr
	}
	regs := st.regs
	regs.Status = byte(st.status)
	return regs, nil
}

// Connect simulates a peer connecting to a listening socket.
func (t *Transport) Connect(s socketmux.Socket) {
	t.SetStatus(s, socketmux.StatusEstablished)
}

// Hangup simulates the peer closing its side of the connection.
func (t *Transport) Hangup(s socketmux.Socket) {
	t.SetStatus(s, socketmux.StatusCloseWait)
}

// SetStatus forces the status register of s.
func (t *Transport) SetStatus(s socketmux.Socket, status socketmux.SocketStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socket(s).status = status
}

// SetUnknownStatus makes Status report an unrecognized register value for s.
func (t *Transport) SetUnknownStatus(s socketmux.Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socket(s).unknown = true
}

// SetStatusError makes Status fail for s.
func (t *Transport) SetStatusError(s socketmux.Socket, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socket(s).statusErr = err
}

// SetSendError makes Send fail for s.
func (t *Transport) SetSendError(s socketmux.Socket, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socket(s).sendErr = err
}

// SetRegistersError makes ReadRegisters fail for s.
func (t *Transport) SetRegistersError(s socketmux.Socket, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.socket(s).regsErr = err
}

// SetConfigureError makes Configure fail.
func (t *Transport) SetConfigureError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.configErr = err
}

// SetResetError makes Reset fail for every socket.
func (t *Transport) SetResetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetErr = err
}

// Deliver appends bytes from the peer to the unread input of s.
func (t *Transport) Deliver(s socketmux.Socket, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.socket(s)
	st.inbox = append(st.inbox, data...)
}

// Unread returns how many delivered bytes have not been consumed.
func (t *Transport) Unread(s socketmux.Socket) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.socket(s).inbox)
}

// Sent returns everything written to s, concatenated.
func (t *Transport) Sent(s socketmux.Socket) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []byte
	for _, chunk := range t.socket(s).sent {
		out = append(out, chunk...)
	}
	return out
}

// ClearSent forgets everything written and every recorded call.
func (t *Transport) ClearSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.sockets {
		st.sent = nil
	}
	t.calls = nil
}

// Calls returns the operations issued so far, in order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallsFor returns the operations issued against s, in order.
func (t *Transport) CallsFor(s socketmux.Socket) []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Call
	for _, c := range t.calls {
		if c.Socket == s {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times op was issued against s.
func (t *Transport) Count(op string, s socketmux.Socket) int {
	n := 0
	for _, c := range t.CallsFor(s) {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Network returns the last applied network configuration.
func (t *Transport) Network() *socketmux.NetworkConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.network
}

// PeekStatus reports the current status register of s without recording a call.
func (t *Transport) PeekStatus(s socketmux.Socket) socketmux.SocketStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.socket(s).status
}
