package socketmux

// Pool and buffer sizing.
const (
	// NumSockets is the number of hardware sockets on the chip.
	NumSockets = 8

	// DefaultPort is the TCP port every socket listens on.
	DefaultPort uint16 = 1337

	// DefaultRawBufferSize is the size of the shared transport buffer.
	DefaultRawBufferSize = 3000

	// DefaultPayloadBufferSize is the size of the shared decoded-payload buffer.
	DefaultPayloadBufferSize = 500
)

// Diagnostic dump pacing.
const (
	// DefaultDumpsPerSecond matches a 50ms pause after every register dump.
	DefaultDumpsPerSecond = 20
	DefaultDumpBurst      = 1
)

// Metric keys.
var (
	MetricBytesReceived     = []string{"socketmux", "bytes", "received"}
	MetricBytesSent         = []string{"socketmux", "bytes", "sent"}
	MetricFramesReceived    = []string{"socketmux", "frames", "received"}
	MetricHTTPRequests      = []string{"socketmux", "http", "requests"}
	MetricStatusTransitions = []string{"socketmux", "status", "transitions"}
	MetricSessionErrors     = []string{"socketmux", "session", "errors"}
)
