package mux

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/socketmux"
)

// ErrorPolicy decides how far a session error reaches.
type ErrorPolicy int

const (
	// ContainSessionErrors closes only the offending session on protocol and
	// encoding errors. Transport errors still stop the server.
	ContainSessionErrors ErrorPolicy = iota
	// FailFast stops the server on any error.
	FailFast
)

func (p ErrorPolicy) String() string {
	switch p {
	case ContainSessionErrors:
		return "contain"
	case FailFast:
		return "fail-fast"
	}
	return "unknown"
}

// DumpRateConfig paces diagnostic register dumps.
type DumpRateConfig struct {
	// DumpsPerSecond is the sustained dump rate across all sockets.
	DumpsPerSecond rate.Limit
	// Burst is the number of dumps allowed back to back.
	Burst int
}

// DefaultDumpRateConfig returns one dump every 50ms.
func DefaultDumpRateConfig() *DumpRateConfig {
	return &DumpRateConfig{
		DumpsPerSecond: socketmux.DefaultDumpsPerSecond,
		Burst:          socketmux.DefaultDumpBurst,
	}
}

// Config configures a Server.
type Config struct {
	Transport socketmux.Transport
	Network   socketmux.NetworkConfig
	Port      uint16

	// RawBufferSize and PayloadBufferSize size the two shared buffers.
	RawBufferSize     int
	PayloadBufferSize int

	ErrorPolicy ErrorPolicy

	// Logger receives diagnostics. Nil discards them.
	Logger hclog.Logger

	// Trigger requests register dumps. Nil never dumps.
	Trigger  socketmux.DiagnosticTrigger
	DumpRate *DumpRateConfig

	// RootPage is served for "/". Nil serves the built-in page.
	RootPage []byte

	// PollInterval is slept between passes. Zero busy-polls.
	PollInterval time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Port == 0 {
		out.Port = socketmux.DefaultPort
	}
	if out.RawBufferSize <= 0 {
		out.RawBufferSize = socketmux.DefaultRawBufferSize
	}
	if out.PayloadBufferSize <= 0 {
		out.PayloadBufferSize = socketmux.DefaultPayloadBufferSize
	}
	if out.Logger == nil {
		out.Logger = hclog.NewNullLogger()
	}
	if out.DumpRate == nil {
		out.DumpRate = DefaultDumpRateConfig()
	}
	if out.RootPage == nil {
		out.RootPage = indexHTML
	}
	return out
}
