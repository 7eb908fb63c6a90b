package socketmux

import "fmt"

// Socket is a hardware socket handle.
type Socket uint8

func (s Socket) String() string {
	return fmt.Sprintf("Socket%d", uint8(s))
}

// SocketStatus mirrors the chip's socket status register.
type SocketStatus uint8

// Register values of the socket status register.
const (
	StatusClosed      SocketStatus = 0x00
	StatusInit        SocketStatus = 0x13
	StatusListen      SocketStatus = 0x14
	StatusSynSent     SocketStatus = 0x15
	StatusSynRecv     SocketStatus = 0x16
	StatusEstablished SocketStatus = 0x17
	StatusFinWait     SocketStatus = 0x18
	StatusClosing     SocketStatus = 0x1A
	StatusTimeWait    SocketStatus = 0x1B
	StatusCloseWait   SocketStatus = 0x1C
	StatusLastAck     SocketStatus = 0x1D
	StatusUDP         SocketStatus = 0x22
	StatusMACRaw      SocketStatus = 0x42
)

var statusNames = map[SocketStatus]string{
	StatusClosed:      "Closed",
	StatusInit:        "Init",
	StatusListen:      "Listen",
	StatusSynSent:     "SynSent",
	StatusSynRecv:     "SynRecv",
	StatusEstablished: "Established",
	StatusFinWait:     "FinWait",
	StatusClosing:     "Closing",
	StatusTimeWait:    "TimeWait",
	StatusCloseWait:   "CloseWait",
	StatusLastAck:     "LastAck",
	StatusUDP:         "Udp",
	StatusMACRaw:      "MacRaw",
}

// ParseSocketStatus maps a raw register value to a SocketStatus. ok is false
// for values the chip does not define.
func ParseSocketStatus(raw byte) (status SocketStatus, ok bool) {
	status = SocketStatus(raw)
	_, ok = statusNames[status]
	return status, ok
}

func (s SocketStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%#x)", uint8(s))
}
