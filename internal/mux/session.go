package mux

import (
	"github.com/google/uuid"

	"github.com/luciancaetano/socketmux"
	"github.com/luciancaetano/socketmux/internal/wscodec"
)

type closeRequest struct {
	code   int
	reason string
}

// slot pairs a pool index with its hardware socket for the life of the
// process. A closed connection reuses the slot in place.
type slot struct {
	index  int
	socket socketmux.Socket
	status socketmux.SocketStatus
	ws     *wscodec.WebSocket
	connID string

	// held is the number of unread bytes left in the transport after the
	// last visit because they form an incomplete header or frame. They are
	// decoded again only once more bytes arrive.
	held int

	pendingClose *closeRequest
}

// newSlots binds slot i to socket i. Handles are never shared or reassigned.
func newSlots(n int) []*slot {
	slots := make([]*slot, n)
	for i := range slots {
		slots[i] = &slot{
			index:  i,
			socket: socketmux.Socket(i),
			status: socketmux.StatusClosed,
			ws:     wscodec.NewServer(),
		}
	}
	return slots
}

// observe records a status change and applies its side effects on the slot.
// It reports whether the status changed.
func (sl *slot) observe(status socketmux.SocketStatus) bool {
	if status == sl.status {
		return false
	}
	sl.status = status
	sl.held = 0
	switch status {
	case socketmux.StatusEstablished:
		sl.connID = uuid.NewString()
	case socketmux.StatusClosed, socketmux.StatusCloseWait:
		sl.connID = ""
		sl.pendingClose = nil
		sl.ws.Reset()
	}
	return true
}

// abort drops the WebSocket session so the next connection starts fresh.
func (sl *slot) abort() {
	sl.held = 0
	sl.pendingClose = nil
	sl.ws.Reset()
}

func (sl *slot) info() socketmux.SessionInfo {
	return socketmux.SessionInfo{
		Slot:           sl.index,
		Socket:         sl.socket,
		Status:         sl.status,
		WebSocketState: sl.ws.State(),
		ConnectionID:   sl.connID,
	}
}
