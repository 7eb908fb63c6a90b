// Package mux multiplexes the chip's fixed socket pool through the TCP
// lifecycle, HTTP routing and WebSocket message handling on a single
// cooperative poll loop.
package mux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/socketmux"
)

// Server implements socketmux.Server.
type Server struct {
	transport socketmux.Transport
	network   socketmux.NetworkConfig
	port      uint16
	policy    ErrorPolicy
	logger    hclog.Logger
	trigger   socketmux.DiagnosticTrigger
	interval  time.Duration

	dumpLimiter *rate.Limiter
	rootPage    []byte

	// raw and payload are the two shared buffers. Only the slot being
	// serviced touches them.
	raw     []byte
	payload []byte

	// mu guards slots against Sessions and CloseSession while a slot is
	// being serviced.
	mu      sync.Mutex
	slots   []*slot
	running bool
}

// New creates a server over cfg.Transport. Both shared buffers and the canned
// responses are allocated here and reused for the life of the server.
func New(cfg *Config) *Server {
	c := cfg.withDefaults()
	return &Server{
		transport:   c.Transport,
		network:     c.Network,
		port:        c.Port,
		policy:      c.ErrorPolicy,
		logger:      c.Logger,
		trigger:     c.Trigger,
		interval:    c.PollInterval,
		dumpLimiter: rate.NewLimiter(c.DumpRate.DumpsPerSecond, c.DumpRate.Burst),
		rootPage:    pageResponse(c.RootPage),
		raw:         make([]byte, c.RawBufferSize),
		payload:     make([]byte, c.PayloadBufferSize),
		slots:       newSlots(socketmux.NumSockets),
	}
}

// Run implements socketmux.Server.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return socketmux.ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("initializing",
		"ip", s.network.IP, "subnet", s.network.Subnet,
		"gateway", s.network.Gateway, "mac", s.network.MAC, "port", s.port)

	if err := s.transport.Configure(s.network); err != nil {
		return socketmux.NewChipError(socketmux.TransportError, "configure", err)
	}

	// Make sure every socket starts closed.
	for _, sl := range s.slots {
		if err := s.transport.Reset(sl.socket); err != nil {
			return socketmux.NewError(socketmux.TransportError, "reset", sl.socket, err)
		}
	}

	var ticker *time.Ticker
	if s.interval > 0 {
		ticker = time.NewTicker(s.interval)
		defer ticker.Stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.pass(ctx); err != nil {
			s.logger.Error("server halted", "error", err)
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// pass visits every slot once, in index order.
func (s *Server) pass(ctx context.Context) error {
	for _, sl := range s.slots {
		if s.trigger != nil && s.trigger.Active() {
			s.dumpRegisters(ctx, sl)
		}

		s.mu.Lock()
		err := s.service(sl)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// service runs one slot and applies the error policy to what it returns.
func (s *Server) service(sl *slot) error {
	err := s.step(sl)
	if err == nil {
		return nil
	}

	kind, _ := socketmux.KindOf(err)
	if s.policy == FailFast || kind == socketmux.TransportError || kind == 0 {
		return err
	}

	s.logger.Error("session error, closing socket",
		"slot", sl.index, "socket", sl.socket, "conn_id", sl.connID, "error", err)
	metrics.IncrCounterWithLabels(socketmux.MetricSessionErrors, 1,
		[]metrics.Label{{Name: "kind", Value: kind.String()}})

	sl.abort()
	if cerr := s.transport.Close(sl.socket); cerr != nil {
		return socketmux.NewError(socketmux.TransportError, "close", sl.socket, cerr)
	}
	s.logger.Info("TCP connection closed", "slot", sl.index, "socket", sl.socket)
	return nil
}

// step performs at most one lifecycle action or one receive/dispatch/write
// sequence for sl.
func (s *Server) step(sl *slot) error {
	status, err := s.transport.Status(sl.socket)
	if err != nil {
		if errors.Is(err, socketmux.ErrUnknownStatus) {
			s.logger.Error("unknown socket status", "socket", sl.socket)
			return socketmux.NewError(socketmux.TransportError, "status", sl.socket, err)
		}
		s.logger.Error("cannot read socket status", "socket", sl.socket, "error", err)
		return nil
	}

	from := sl.status
	if sl.observe(status) {
		s.logger.Info("socket status", "socket", sl.socket, "from", from, "to", status)
		metrics.IncrCounterWithLabels(socketmux.MetricStatusTransitions, 1,
			[]metrics.Label{{Name: "to", Value: status.String()}})
	}

	switch status {
	case socketmux.StatusClosed, socketmux.StatusCloseWait:
		s.logger.Info("TCP opening", "socket", sl.socket)
		if err := s.transport.Open(sl.socket); err != nil {
			return socketmux.NewError(socketmux.TransportError, "open", sl.socket, err)
		}
		return nil

	case socketmux.StatusInit:
		s.logger.Info("TCP attempting to listen", "socket", sl.socket, "port", s.port)
		if err := s.transport.Listen(sl.socket, s.port); err != nil {
			return socketmux.NewError(socketmux.TransportError, "listen", sl.socket, err)
		}
		return nil

	case socketmux.StatusEstablished:
		if sl.pendingClose != nil {
			return s.initiateClose(sl)
		}
		return s.receive(sl)

	case socketmux.StatusListen,
		socketmux.StatusSynSent,
		socketmux.StatusSynRecv,
		socketmux.StatusFinWait,
		socketmux.StatusClosing,
		socketmux.StatusTimeWait,
		socketmux.StatusLastAck,
		socketmux.StatusUDP,
		socketmux.StatusMACRaw:
		// Waiting on the peer or the chip.
		return nil
	}

	s.logger.Error("unknown socket status", "socket", sl.socket, "status", status)
	return socketmux.NewError(socketmux.TransportError, "status", sl.socket,
		fmt.Errorf("%w: %s", socketmux.ErrUnknownStatus, status))
}

// receive copies whatever the socket has buffered into the raw buffer and
// hands it to the dispatcher. Bytes the dispatcher could not use yet stay in
// the transport and are read again once more arrive.
func (s *Server) receive(sl *slot) error {
	n, ok, err := s.transport.TryReceive(sl.socket, s.raw)
	if err != nil {
		return socketmux.NewError(socketmux.TransportError, "receive", sl.socket, err)
	}
	if !ok || n == sl.held {
		return nil
	}
	s.logger.Info("received", "socket", sl.socket, "conn_id", sl.connID, "bytes", n-sl.held)
	metrics.IncrCounterWithLabels(socketmux.MetricBytesReceived, float32(n-sl.held),
		[]metrics.Label{{Name: "slot", Value: strconv.Itoa(sl.index)}})

	p, err := s.dispatch(sl, s.raw[:n])
	if err != nil {
		return err
	}
	sl.held = 0
	if p.closed {
		return nil
	}
	if p.consumed > 0 {
		if err := s.transport.Consume(sl.socket, p.consumed); err != nil {
			return socketmux.NewError(socketmux.TransportError, "consume", sl.socket, err)
		}
	}
	if p.waiting {
		sl.held = n - p.consumed
		if sl.held == len(s.raw) {
			return socketmux.NewError(socketmux.ProtocolError, "receive", sl.socket, errUnitTooLarge)
		}
		s.logger.Debug("waiting for more bytes", "socket", sl.socket, "held", sl.held)
	}
	return nil
}

// CloseSession implements socketmux.Server.
func (s *Server) CloseSession(index int, code int, reason string) error {
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: %d", socketmux.ErrInvalidSlot, index)
	}
	// Close frames carry at most 125 payload bytes, two of them the code.
	if len(reason) > 123 {
		return fmt.Errorf("close reason of %d bytes exceeds 123", len(reason))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[index].pendingClose = &closeRequest{code: code, reason: reason}
	return nil
}

// Sessions implements socketmux.Server.
func (s *Server) Sessions() []socketmux.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]socketmux.SessionInfo, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.info()
	}
	return out
}

var _ socketmux.Server = (*Server)(nil)
