package mux

import (
	"errors"
	"strconv"
	"unicode/utf8"

	metrics "github.com/armon/go-metrics"

	"github.com/luciancaetano/socketmux"
)

var (
	errInvalidUTF8  = errors.New("invalid utf-8")
	errUnitTooLarge = errors.New("header or frame exceeds raw buffer")
)

// sender is the part of socketmux.Transport writeAll needs.
type sender interface {
	Send(s socketmux.Socket, p []byte) (int, error)
}

// writeAll sends buf in full, retrying immediately whenever the chip accepts
// fewer bytes than offered. It returns the number of Send calls made.
func writeAll(t sender, sock socketmux.Socket, buf []byte, onSent func(n int)) (int, error) {
	calls := 0
	for start := 0; start < len(buf); {
		n, err := t.Send(sock, buf[start:])
		calls++
		if err != nil {
			return calls, socketmux.NewError(socketmux.TransportError, "send", sock, err)
		}
		if n < 0 || n > len(buf)-start {
			return calls, socketmux.NewError(socketmux.TransportError, "send", sock, socketmux.ErrSendOverflow)
		}
		if onSent != nil {
			onSent(n)
		}
		start += n
	}
	return calls, nil
}

func (s *Server) writeAll(sl *slot, buf []byte) error {
	_, err := writeAll(s.transport, sl.socket, buf, func(n int) {
		s.logger.Info("sent", "socket", sl.socket, "bytes", n)
		metrics.IncrCounterWithLabels(socketmux.MetricBytesSent, float32(n),
			[]metrics.Label{{Name: "slot", Value: strconv.Itoa(sl.index)}})
	})
	return err
}

// validTextFragment checks one fragment of a text message. Runes may be split
// across fragments, so a continuation may start mid-rune and a non-final
// fragment may end mid-rune.
func validTextFragment(p []byte, continuation, final bool) bool {
	if continuation {
		for i := 0; i < utf8.UTFMax-1 && len(p) > 0 && !utf8.RuneStart(p[0]); i++ {
			p = p[1:]
		}
	}
	if !final {
		for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
			if utf8.RuneStart(p[len(p)-i]) {
				if !utf8.FullRune(p[len(p)-i:]) {
					p = p[:len(p)-i]
				}
				break
			}
		}
	}
	return utf8.Valid(p)
}
