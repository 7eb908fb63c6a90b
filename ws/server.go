package ws

import (
	"github.com/luciancaetano/socketmux"
	"github.com/luciancaetano/socketmux/internal/mux"
	"github.com/luciancaetano/socketmux/internal/nettransport"
)

type ServerConfig = *mux.Config
type DumpRateConfig = mux.DumpRateConfig
type ErrorPolicy = mux.ErrorPolicy
type HostTransport = nettransport.Transport
type HostTransportConfig = nettransport.Config

const (
	ContainSessionErrors = mux.ContainSessionErrors
	FailFast             = mux.FailFast

	DefaultPort = socketmux.DefaultPort

	// DefaultHostRxBufferSize is the host transport's per-connection receive
	// buffer when HostTransportConfig.RxBufferSize is zero.
	DefaultHostRxBufferSize = nettransport.DefaultRxBufferSize
)

// New creates a socket multiplexer over the transport in cfg.
//
// Parameters:
//   - cfg: Server configuration. Use NewConfig to start from the defaults.
//     Zero buffer sizes and port fall back to the defaults; a nil Logger
//     discards all output.
//
// Example:
//
//	transport := ws.NewHostTransport(&ws.HostTransportConfig{Addr: ":1337"})
//	server := ws.New(ws.NewConfig(transport, ws.DefaultNetworkConfig(), ws.DefaultPort))
//	err := server.Run(ctx)
func New(cfg ServerConfig) socketmux.Server {
	return mux.New(cfg)
}

// NewConfig returns a server configuration with default buffers, the
// ContainSessionErrors policy and no diagnostics trigger.
func NewConfig(transport socketmux.Transport, network socketmux.NetworkConfig, port uint16) ServerConfig {
	return &mux.Config{
		Transport:         transport,
		Network:           network,
		Port:              port,
		RawBufferSize:     socketmux.DefaultRawBufferSize,
		PayloadBufferSize: socketmux.DefaultPayloadBufferSize,
		ErrorPolicy:       ContainSessionErrors,
		DumpRate:          DefaultDumpRateConfig(),
	}
}

// DefaultNetworkConfig returns the factory network identity
func DefaultNetworkConfig() socketmux.NetworkConfig {
	return socketmux.DefaultNetworkConfig()
}

// DefaultDumpRateConfig returns the default register dump pacing
// (one dump every 50ms)
func DefaultDumpRateConfig() *DumpRateConfig {
	return mux.DefaultDumpRateConfig()
}

// NewHostTransport returns a transport that serves the socket pool from the
// host's network stack instead of the chip
func NewHostTransport(cfg *HostTransportConfig) *HostTransport {
	return nettransport.New(cfg)
}
