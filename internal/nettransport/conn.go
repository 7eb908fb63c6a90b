package nettransport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
)

// conn is an accepted TCP connection with a bounded receive buffer, the host
// stand-in for a socket's RX memory. A reader goroutine fills rx from the
// network; TryReceive copies from it and Consume drains it.
type conn struct {
	id     string
	nc     net.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	rx     []byte
	rxSize int
	eof    bool
	closed bool

	// peeked is how many bytes the last read returned since rx last
	// shrank.
	peeked int

	// space is signalled whenever rx is drained.
	space chan struct{}
}

func newConn(nc net.Conn, rxSize int) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		id:     uuid.New().String(),
		nc:     nc,
		ctx:    ctx,
		cancel: cancel,
		rxSize: rxSize,
		space:  make(chan struct{}, 1),
	}
}

// readPump copies bytes from the network into rx until the peer closes the
// connection, a read fails or the conn is closed locally.
func (c *conn) readPump(done func()) {
	defer done()

	buf := make([]byte, c.rxSize)
	for {
		c.mu.Lock()
		free := c.rxSize - len(c.rx)
		c.mu.Unlock()

		if free == 0 {
			select {
			case <-c.ctx.Done():
				return
			case <-c.space:
			}
			continue
		}

		n, err := c.nc.Read(buf[:free])

		c.mu.Lock()
		c.rx = append(c.rx, buf[:n]...)
		if err != nil {
			c.eof = true
		}
		c.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// read copies buffered bytes into p, leaving them in rx.
func (c *conn) read(p []byte) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rx) == 0 {
		return 0, false
	}
	n := copy(p, c.rx)
	c.peeked = n
	return n, true
}

// consume drops the first n buffered bytes.
func (c *conn) consume(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n > len(c.rx) {
		return fmt.Errorf("consume %d of %d unread bytes", n, len(c.rx))
	}
	if n == 0 {
		return nil
	}
	c.rx = c.rx[n:]
	if len(c.rx) == 0 {
		c.rx = nil
	}
	c.peeked = 0

	select {
	case c.space <- struct{}{}:
	default:
	}
	return nil
}

// drained reports that the peer has closed its side and nothing usable is
// left to read: rx is empty, or all of it was already read without being
// consumed.
func (c *conn) drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eof && (len(c.rx) == 0 || c.peeked == len(c.rx))
}

func (c *conn) pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx) > 0
}

func (c *conn) hungUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eof
}

// Close is idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.nc.Close()
}
