package mux

import (
	"bytes"
	"errors"
	"strconv"
	"unicode/utf8"

	metrics "github.com/armon/go-metrics"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/socketmux"
	"github.com/luciancaetano/socketmux/internal/wscodec"
)

var headerEnd = []byte("\r\n\r\n")

// progress reports what a dispatch did with the received bytes.
type progress struct {
	// consumed bytes were fully handled and can be released.
	consumed int
	// waiting means the bytes after consumed are an incomplete header or
	// frame.
	waiting bool
	// closed means the socket was closed; unread bytes went with it.
	closed bool
}

// dispatch routes bytes received on an established socket. data aliases the
// raw buffer.
func (s *Server) dispatch(sl *slot, data []byte) (progress, error) {
	switch sl.ws.State() {
	case socketmux.WebSocketOpen, socketmux.WebSocketCloseSent:
		return s.handleFrames(sl, data)
	}
	return s.handleHTTP(sl, data)
}

func (s *Server) handleHTTP(sl *slot, data []byte) (progress, error) {
	end := bytes.Index(data, headerEnd)
	if end < 0 {
		return progress{waiting: true}, nil
	}
	head := end + len(headerEnd)

	hdr, err := wscodec.ReadHTTPHeader(data[:head])
	if err != nil {
		return progress{}, socketmux.NewError(socketmux.ProtocolError, "read http header", sl.socket, err)
	}

	if hdr.WebSocket != nil {
		s.logger.Info("websocket request, generating handshake", "socket", sl.socket, "path", hdr.Path)
		n, err := sl.ws.RespondToOpeningHandshake(hdr.WebSocket.Key, "", s.raw)
		if err != nil {
			return progress{}, socketmux.NewError(socketmux.ProtocolError, "handshake", sl.socket, err)
		}
		s.logger.Info("websocket sending handshake response", "socket", sl.socket, "bytes", n)
		if err := s.writeAll(sl, s.raw[:n]); err != nil {
			return progress{}, err
		}
		s.countRequest(101)
		s.logger.Info("websocket handshake complete", "socket", sl.socket, "conn_id", sl.connID)
		// Frames sent right behind the request stay unread for the next visit.
		return progress{consumed: head}, nil
	}

	s.logger.Info("http file header", "socket", sl.socket, "path", hdr.Path)
	if hdr.Path == "/" {
		s.countRequest(200)
		return progress{closed: true}, s.sendAndClose(sl, s.rootPage)
	}
	s.countRequest(404)
	return progress{closed: true}, s.sendAndClose(sl, []byte(notFoundResponse))
}

func (s *Server) countRequest(status int) {
	metrics.IncrCounterWithLabels(socketmux.MetricHTTPRequests, 1,
		[]metrics.Label{{Name: "status", Value: strconv.Itoa(status)}})
}

func (s *Server) sendAndClose(sl *slot, resp []byte) error {
	if err := s.writeAll(sl, resp); err != nil {
		return err
	}
	if err := s.closeSocket(sl); err != nil {
		return err
	}
	s.logger.Info("send complete, connection closed", "socket", sl.socket)
	return nil
}

func (s *Server) closeSocket(sl *slot) error {
	if err := s.transport.Close(sl.socket); err != nil {
		return socketmux.NewError(socketmux.TransportError, "close", sl.socket, err)
	}
	s.logger.Info("TCP connection closed", "socket", sl.socket, "conn_id", sl.connID)
	return nil
}

// handleFrames decodes every complete frame in data. Each reply is encoded
// into the part of the raw buffer its request frame occupied: a server frame
// is never longer than the masked client frame it answers, so replies never
// overwrite frames that are still unread. A trailing partial frame is left
// unconsumed.
func (s *Server) handleFrames(sl *slot, data []byte) (progress, error) {
	off := 0
	for off < len(data) {
		res, err := sl.ws.Read(data[off:], s.payload)
		if errors.Is(err, wscodec.ErrFrameIncomplete) {
			return progress{consumed: off, waiting: true}, nil
		}
		if err != nil {
			return progress{}, socketmux.NewError(socketmux.ProtocolError, "decode frame", sl.socket, err)
		}
		region := data[off : off+res.FrameLen]
		off += res.FrameLen

		done, err := s.handleMessage(sl, res, region)
		if err != nil {
			return progress{}, err
		}
		if done {
			if rest := len(data) - off; rest > 0 {
				s.logger.Info("discarding bytes after close", "socket", sl.socket, "bytes", rest)
			}
			return progress{closed: true}, nil
		}
	}
	return progress{consumed: off}, nil
}

// handleMessage reacts to one decoded frame. done reports that the TCP
// connection was closed.
func (s *Server) handleMessage(sl *slot, res wscodec.ReadResult, region []byte) (done bool, err error) {
	s.logger.Info("websocket decoded", "socket", sl.socket, "type", res.Type, "bytes", res.N)
	metrics.IncrCounterWithLabels(socketmux.MetricFramesReceived, 1,
		[]metrics.Label{{Name: "type", Value: res.Type.String()}})

	payload := s.payload[:res.N]
	switch res.Type {
	case wscodec.ReceiveText:
		if !validTextFragment(payload, res.Continuation, res.EndOfMessage) {
			return false, socketmux.NewError(socketmux.EncodingError, "text message", sl.socket, errInvalidUTF8)
		}
		s.logger.Info("websocket message", "socket", sl.socket, "conn_id", sl.connID, "text", string(payload))
		if sl.ws.State() != socketmux.WebSocketOpen {
			// Our close frame is already on the wire; no more data frames.
			return false, nil
		}
		return false, s.reply(sl, wscodec.SendText, res.EndOfMessage, payload, region)

	case wscodec.ReceiveBinary:
		return false, nil

	case wscodec.ReceivePing:
		return false, s.reply(sl, wscodec.SendPong, true, payload, region)

	case wscodec.ReceivePong:
		return false, nil

	case wscodec.ReceiveCloseMustReply:
		if err := s.logClose(sl, res, payload); err != nil {
			return false, err
		}
		if err := s.reply(sl, wscodec.SendCloseReply, true, payload, region); err != nil {
			return false, err
		}
		return true, s.closeSocket(sl)

	case wscodec.ReceiveCloseCompleted:
		if err := s.logClose(sl, res, payload); err != nil {
			return false, err
		}
		s.logger.Info("websocket close handshake completed", "socket", sl.socket)
		return true, s.closeSocket(sl)
	}
	return false, socketmux.NewError(socketmux.ProtocolError, "decode frame", sl.socket, wscodec.ErrUnknownOpcode)
}

func (s *Server) logClose(sl *slot, res wscodec.ReadResult, payload []byte) error {
	if !res.HasCloseStatus {
		s.logger.Info("websocket close without status", "socket", sl.socket)
		return nil
	}
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return socketmux.NewError(socketmux.EncodingError, "close reason", sl.socket, errInvalidUTF8)
	}
	if len(reason) > 0 {
		s.logger.Info("websocket close status", "socket", sl.socket, "code", res.CloseStatus, "reason", string(reason))
	} else {
		s.logger.Info("websocket close status", "socket", sl.socket, "code", res.CloseStatus)
	}
	return nil
}

// reply encodes payload as a frame of type t into region and writes it.
func (s *Server) reply(sl *slot, t wscodec.SendType, endOfMessage bool, payload, region []byte) error {
	n, err := sl.ws.Write(t, endOfMessage, payload, region)
	if err != nil {
		return socketmux.NewError(socketmux.ProtocolError, "encode frame", sl.socket, err)
	}
	if err := s.writeAll(sl, region[:n]); err != nil {
		return err
	}
	s.logger.Info("websocket encoded", "socket", sl.socket, "type", t, "bytes", n)
	return nil
}

// initiateClose serves a CloseSession request for sl.
func (s *Server) initiateClose(sl *slot) error {
	req := sl.pendingClose
	sl.pendingClose = nil
	if sl.ws.State() != socketmux.WebSocketOpen {
		s.logger.Error("dropping close request", "socket", sl.socket,
			"state", sl.ws.State(), "error", socketmux.ErrSessionNotOpen)
		return nil
	}

	n := copy(s.payload, websocket.FormatCloseMessage(req.code, req.reason))
	frame, err := sl.ws.Write(wscodec.SendCloseInitiated, true, s.payload[:n], s.raw)
	if err != nil {
		return socketmux.NewError(socketmux.ProtocolError, "encode frame", sl.socket, err)
	}
	s.logger.Info("websocket closing", "socket", sl.socket, "conn_id", sl.connID, "code", req.code)
	return s.writeAll(sl, s.raw[:frame])
}
