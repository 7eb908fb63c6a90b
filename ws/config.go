package ws

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/socketmux"
)

// FileConfig is the on-disk configuration format. Every field is optional;
// unset fields keep their defaults.
//
//	ip_address          = "192.168.1.33"
//	subnet_mask         = "255.255.255.0"
//	gateway             = "192.168.1.1"
//	mac_address         = "02:01:02:03:04:05"
//	port                = 1337
//	listen_addr         = ":1337"
//	error_policy        = "contain"
//	log_level           = "info"
//	dumps_per_second    = 20
//	poll_interval       = "1ms"
type FileConfig struct {
	// IPAddress, SubnetMask, Gateway and MACAddress form the network identity
	// applied to the chip.
	IPAddress  string `hcl:"ip_address"`
	SubnetMask string `hcl:"subnet_mask"`
	Gateway    string `hcl:"gateway"`
	MACAddress string `hcl:"mac_address"`

	// Port is the TCP port every socket listens on.
	Port int `hcl:"port"`

	// ListenAddr overrides the host transport's bind address.
	ListenAddr string `hcl:"listen_addr"`

	RawBufferSize     int `hcl:"raw_buffer_size"`
	PayloadBufferSize int `hcl:"payload_buffer_size"`

	// ErrorPolicy is "contain" or "fail-fast".
	ErrorPolicy string `hcl:"error_policy"`

	LogLevel string `hcl:"log_level"`

	DumpsPerSecond float64 `hcl:"dumps_per_second"`
	PollInterval   string  `hcl:"poll_interval"`
}

// ParseConfig decodes HCL configuration.
func ParseConfig(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := hcl.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile reads and decodes an HCL configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseErrorPolicy maps a policy name to its ErrorPolicy. The empty string
// selects ContainSessionErrors.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ContainSessionErrors.String():
		return ContainSessionErrors, nil
	case FailFast.String(), "failfast":
		return FailFast, nil
	}
	return 0, fmt.Errorf("unknown error policy %q", s)
}

// Network returns the default network identity with the configured fields
// applied.
func (f *FileConfig) Network() (socketmux.NetworkConfig, error) {
	nc := socketmux.DefaultNetworkConfig()
	var result error

	parseAddr := func(name, value string, dst *netip.Addr) {
		if value == "" {
			return
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = addr
	}
	parseAddr("ip_address", f.IPAddress, &nc.IP)
	parseAddr("subnet_mask", f.SubnetMask, &nc.Subnet)
	parseAddr("gateway", f.Gateway, &nc.Gateway)

	if f.MACAddress != "" {
		mac, err := net.ParseMAC(f.MACAddress)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("mac_address: %w", err))
		} else {
			nc.MAC = mac
		}
	}

	if result != nil {
		return nc, result
	}
	return nc, nc.Validate()
}

// Level returns the configured log level, defaulting to Info.
func (f *FileConfig) Level() hclog.Level {
	if lvl := hclog.LevelFromString(f.LogLevel); lvl != hclog.NoLevel {
		return lvl
	}
	return hclog.Info
}

// ServerConfig builds a server configuration for transport from f. Every
// invalid field is reported.
func (f *FileConfig) ServerConfig(transport socketmux.Transport, logger hclog.Logger) (ServerConfig, error) {
	var result error

	nc, err := f.Network()
	if err != nil {
		result = multierror.Append(result, err)
	}

	cfg := NewConfig(transport, nc, DefaultPort)
	cfg.Logger = logger

	if f.Port != 0 {
		if f.Port < 1 || f.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("port: %d out of range", f.Port))
		} else {
			cfg.Port = uint16(f.Port)
		}
	}
	if f.RawBufferSize < 0 || f.PayloadBufferSize < 0 {
		result = multierror.Append(result, fmt.Errorf("buffer sizes must not be negative"))
	}
	if f.RawBufferSize > 0 {
		cfg.RawBufferSize = f.RawBufferSize
	}
	if f.PayloadBufferSize > 0 {
		cfg.PayloadBufferSize = f.PayloadBufferSize
	}

	if cfg.ErrorPolicy, err = ParseErrorPolicy(f.ErrorPolicy); err != nil {
		result = multierror.Append(result, fmt.Errorf("error_policy: %w", err))
	}

	switch {
	case f.DumpsPerSecond < 0:
		result = multierror.Append(result, fmt.Errorf("dumps_per_second: %v is negative", f.DumpsPerSecond))
	case f.DumpsPerSecond > 0:
		cfg.DumpRate = &DumpRateConfig{DumpsPerSecond: rate.Limit(f.DumpsPerSecond), Burst: socketmux.DefaultDumpBurst}
	}

	if f.PollInterval != "" {
		d, err := time.ParseDuration(f.PollInterval)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("poll_interval: %w", err))
		} else {
			cfg.PollInterval = d
		}
	}

	if result != nil {
		return nil, result
	}
	return cfg, nil
}
