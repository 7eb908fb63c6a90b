// Package nettransport runs the socket pool on the host network stack. It
// emulates the chip's socket model over net: sockets move through the same
// status values, sends are capped by a TX buffer size and a short write
// deadline, and each connection has a bounded receive buffer that is read
// without being consumed until Consume.
package nettransport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/luciancaetano/socketmux"
)

const (
	// DefaultBufferSize matches the chip's default 2KB per-socket TX buffer.
	DefaultBufferSize = 2048
	// DefaultRxBufferSize holds a full raw buffer of unread input.
	DefaultRxBufferSize = 4096
	// DefaultWriteTimeout bounds how long a Send waits on a slow peer.
	DefaultWriteTimeout = 5 * time.Millisecond
)

// Register bits reported by ReadRegisters.
const (
	modeTCP byte = 0x01

	irCon    byte = 1 << 0
	irDiscon byte = 1 << 1
	irRecv   byte = 1 << 2
)

var (
	ErrNoSuchSocket = errors.New("no such socket")
	ErrNotConnected = errors.New("socket not connected")
	ErrWrongState   = errors.New("command not valid in socket state")
	ErrShutdown     = errors.New("transport shut down")
)

// Config configures a Transport.
type Config struct {
	// Addr overrides the listen address. Empty binds every interface on the
	// port passed to Listen.
	Addr string

	// TxBufferSize caps the bytes a single Send accepts.
	TxBufferSize int
	// RxBufferSize caps the bytes buffered per connection. It should be at
	// least the server's raw buffer size so a header or frame that fits the
	// raw buffer can be buffered whole.
	RxBufferSize int
	// WriteTimeout bounds a single Send. Bytes not written in time are
	// reported as not accepted.
	WriteTimeout time.Duration

	Logger hclog.Logger
}

type socketState struct {
	status socketmux.SocketStatus
	port   uint16
	conn   *conn
}

// Transport implements socketmux.Transport over net.
//
// All sockets share one listener. Accepted connections wait in a FIFO
// backlog until a socket in Listen claims one during Status.
type Transport struct {
	addr   string
	txSize       int
	rxSize       int
	writeTimeout time.Duration
	logger       hclog.Logger

	mu       sync.Mutex
	network  *socketmux.NetworkConfig
	ln       net.Listener
	port     uint16
	backlog  *queue.Queue // of *conn
	sockets  [socketmux.NumSockets]socketState
	shutdown bool

	wg sync.WaitGroup
}

// New creates a transport. Nothing is bound until the first Listen.
func New(cfg *Config) *Transport {
	if cfg == nil {
		cfg = &Config{}
	}
	t := &Transport{
		addr:         cfg.Addr,
		txSize:       cfg.TxBufferSize,
		rxSize:       cfg.RxBufferSize,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger,
		backlog:      queue.New(),
	}
	if t.txSize <= 0 {
		t.txSize = DefaultBufferSize
	}
	if t.rxSize <= 0 {
		t.rxSize = DefaultRxBufferSize
	}
	if t.writeTimeout <= 0 {
		t.writeTimeout = DefaultWriteTimeout
	}
	if t.logger == nil {
		t.logger = hclog.NewNullLogger()
	}
	t.logger = t.logger.Named("nettransport")
	return t
}

func (t *Transport) socket(s socketmux.Socket) (*socketState, error) {
	if int(s) >= len(t.sockets) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSocket, s)
	}
	return &t.sockets[s], nil
}

// Configure implements socketmux.Transport. The host's own addressing is
// used, so the configuration is only validated and recorded.
func (t *Transport) Configure(cfg socketmux.NetworkConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.network = &cfg
	t.logger.Debug("network configured", "ip", cfg.IP, "mac", cfg.MAC)
	return nil
}

// Network returns the configuration last passed to Configure.
func (t *Transport) Network() *socketmux.NetworkConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.network
}

// Reset implements socketmux.Transport.
func (t *Transport) Reset(s socketmux.Socket) error {
	return t.Close(s)
}

// Status implements socketmux.Transport. A listening socket claims the
// oldest waiting connection; an established socket whose peer has hung up
// and whose remaining data has all been read moves to CloseWait.
func (t *Transport) Status(s socketmux.Socket) (socketmux.SocketStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.socket(s)
	if err != nil {
		return 0, err
	}

	switch st.status {
	case socketmux.StatusListen:
		if t.backlog.Length() > 0 {
			c := t.backlog.Remove().(*conn)
			st.conn = c
			st.status = socketmux.StatusEstablished
			t.logger.Debug("connection claimed", "socket", s, "conn", c.id, "remote", c.nc.RemoteAddr())
		}
	case socketmux.StatusEstablished:
		if st.conn.drained() {
			st.status = socketmux.StatusCloseWait
		}
	}
	return st.status, nil
}

// Open implements socketmux.Transport.
func (t *Transport) Open(s socketmux.Socket) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.socket(s)
	if err != nil {
		return err
	}
	err = t.release(st)
	st.status = socketmux.StatusInit
	return err
}

// Listen implements socketmux.Transport. The first call binds the shared
// listener; later calls must use the same port.
func (t *Transport) Listen(s socketmux.Socket, port uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.socket(s)
	if err != nil {
		return err
	}
	if st.status != socketmux.StatusInit {
		return fmt.Errorf("%w: listen on %s in %s", ErrWrongState, s, st.status)
	}
	if err := t.bind(port); err != nil {
		return err
	}
	st.status = socketmux.StatusListen
	st.port = port
	return nil
}

func (t *Transport) bind(port uint16) error {
	if t.shutdown {
		return ErrShutdown
	}
	if t.ln != nil {
		if port != t.port {
			return fmt.Errorf("listener bound to port %d, not %d", t.port, port)
		}
		return nil
	}

	addr := t.addr
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(int(port)))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.ln = ln
	t.port = port
	t.logger.Info("listening", "addr", ln.Addr())

	t.wg.Add(1)
	go t.acceptLoop(ln)
	return nil
}

func (t *Transport) acceptLoop(ln net.Listener) {
	defer t.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Error("accept error", "error", err)
			continue
		}

		c := newConn(nc, t.rxSize)
		t.mu.Lock()
		if t.shutdown {
			t.mu.Unlock()
			nc.Close()
			return
		}
		t.backlog.Add(c)
		t.wg.Add(1)
		t.mu.Unlock()

		go c.readPump(t.wg.Done)
		t.logger.Debug("connection accepted", "conn", c.id, "remote", nc.RemoteAddr())
	}
}

// Close implements socketmux.Transport.
func (t *Transport) Close(s socketmux.Socket) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.socket(s)
	if err != nil {
		return err
	}
	err = t.release(st)
	st.status = socketmux.StatusClosed
	return err
}

// release drops the socket's connection. Callers hold t.mu.
func (t *Transport) release(st *socketState) error {
	if st.conn == nil {
		return nil
	}
	c := st.conn
	st.conn = nil
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (t *Transport) connected(s socketmux.Socket) (*conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.socket(s)
	if err != nil {
		return nil, err
	}
	switch st.status {
	case socketmux.StatusEstablished, socketmux.StatusCloseWait:
		return st.conn, nil
	}
	return nil, fmt.Errorf("%w: %s is %s", ErrNotConnected, s, st.status)
}

// Send implements socketmux.Transport. At most TxBufferSize bytes are
// written per call, and a peer that stops reading makes Send return what was
// written before WriteTimeout.
func (t *Transport) Send(s socketmux.Socket, p []byte) (int, error) {
	c, err := t.connected(s)
	if err != nil {
		return 0, err
	}
	if err := c.nc.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return 0, err
	}
	n, err := c.nc.Write(p[:min(len(p), t.txSize)])
	if errors.Is(err, os.ErrDeadlineExceeded) {
		t.logger.Trace("send timed out", "socket", s, "written", n)
		return n, nil
	}
	return n, err
}

// TryReceive implements socketmux.Transport.
func (t *Transport) TryReceive(s socketmux.Socket, p []byte) (int, bool, error) {
	c, err := t.connected(s)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return 0, false, nil
		}
		return 0, false, err
	}
	n, ok := c.read(p)
	return n, ok, nil
}

// Consume implements socketmux.Transport.
func (t *Transport) Consume(s socketmux.Socket, n int) error {
	c, err := t.connected(s)
	if err != nil {
		return err
	}
	return c.consume(n)
}

// ReadRegisters implements socketmux.Transport with the values the chip
// would report for the emulated socket.
func (t *Transport) ReadRegisters(s socketmux.Socket) (socketmux.Registers, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.socket(s)
	if err != nil {
		return socketmux.Registers{}, err
	}

	regs := socketmux.Registers{
		Mode:          modeTCP,
		Status:        byte(st.status),
		Port:          st.port,
		InterruptMask: 0xFF,
	}
	if c := st.conn; c != nil {
		regs.Interrupt |= irCon
		if c.pending() {
			regs.Interrupt |= irRecv
		}
		if c.hungUp() {
			regs.Interrupt |= irDiscon
		}
	}
	return regs, nil
}

// Addr returns the bound listener address, or nil before the first Listen.
func (t *Transport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

// Shutdown closes the listener and every connection, then waits for the
// transport's goroutines to exit.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return nil
	}
	t.shutdown = true

	var result *multierror.Error
	if t.ln != nil {
		if err := t.ln.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close listener: %w", err))
		}
	}
	for i := range t.sockets {
		st := &t.sockets[i]
		if err := t.release(st); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", socketmux.Socket(i), err))
		}
		st.status = socketmux.StatusClosed
	}
	for t.backlog.Length() > 0 {
		c := t.backlog.Remove().(*conn)
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close backlog conn %s: %w", c.id, err))
		}
	}
	t.mu.Unlock()

	t.wg.Wait()
	return result.ErrorOrNil()
}

var _ socketmux.Transport = (*Transport)(nil)
