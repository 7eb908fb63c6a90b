package mux

import (
	"context"
	"fmt"
)

// dumpRegisters logs the socket's register block. Failures are logged and
// never affect the poll loop.
func (s *Server) dumpRegisters(ctx context.Context, sl *slot) {
	regs, err := s.transport.ReadRegisters(sl.socket)
	if err != nil {
		s.logger.Info("read registers error", "socket", sl.socket, "error", err)
		return
	}
	s.logger.Info("socket registers",
		"socket", sl.socket,
		"command", fmt.Sprintf("%#X", regs.Command),
		"status", fmt.Sprintf("%#X", regs.Status),
		"interrupt", fmt.Sprintf("%08b", regs.Interrupt),
		"port", regs.Port,
		"interrupt_mask", fmt.Sprintf("%08b", regs.InterruptMask))

	// Give whoever reads the dump time to keep up.
	if err := s.dumpLimiter.Wait(ctx); err != nil {
		s.logger.Debug("register dump pacing stopped", "socket", sl.socket, "error", err)
		return
	}
}
