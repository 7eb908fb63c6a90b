// Command socketmux serves the socket pool from the host network stack.
//
// SIGUSR1 dumps the in-memory metrics to stderr. SIGUSR2 toggles the
// per-socket register dump. SIGINT and SIGTERM stop the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"

	"github.com/luciancaetano/socketmux"
	"github.com/luciancaetano/socketmux/ws"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("socketmux", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to an HCL configuration file")
	listen := fs.String("listen", "", "host listen address, overrides listen_addr")
	port := fs.Int("port", 0, "TCP port every socket listens on")
	logLevel := fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
	policy := fs.String("error-policy", "", `session error policy ("contain" or "fail-fast")`)
	poll := fs.Duration("poll-interval", 0, "pause between poll passes")
	dump := fs.Bool("dump", false, "start with register dumps enabled")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fc := &ws.FileConfig{}
	if *configPath != "" {
		var err error
		if fc, err = ws.LoadConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	// Flags override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			fc.ListenAddr = *listen
		case "port":
			fc.Port = *port
		case "log-level":
			fc.LogLevel = *logLevel
		case "error-policy":
			fc.ErrorPolicy = *policy
		case "poll-interval":
			fc.PollInterval = poll.String()
		}
	})
	if fc.PollInterval == "" {
		fc.PollInterval = time.Millisecond.String()
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "socketmux",
		Level:  fc.Level(),
		Output: os.Stderr,
	})

	// Aggregate on 10 second intervals for 1 minute; SIGUSR1 dumps to stderr.
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)
	metricsConf := metrics.DefaultConfig("socketmux")
	metricsConf.EnableHostname = false
	if _, err := metrics.NewGlobal(metricsConf, inm); err != nil {
		logger.Error("failed to set up metrics", "error", err)
		return 1
	}

	transport := ws.NewHostTransport(&ws.HostTransportConfig{
		Addr:         fc.ListenAddr,
		RxBufferSize: max(fc.RawBufferSize, ws.DefaultHostRxBufferSize),
		Logger:       logger,
	})
	defer func() {
		if err := transport.Shutdown(); err != nil {
			logger.Error("transport shutdown", "error", err)
		}
	}()

	cfg, err := fc.ServerConfig(transport, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	var dumping atomic.Bool
	dumping.Store(*dump)
	cfg.Trigger = socketmux.TriggerFunc(dumping.Load)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go toggleOnSignal(ctx, &dumping, logger)

	err = ws.New(cfg).Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return 0
	}
	logger.Error("server halted", "error", err)
	return 1
}

// toggleOnSignal flips the register dump on every SIGUSR2 until ctx is done.
func toggleOnSignal(ctx context.Context, enabled *atomic.Bool, logger hclog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR2)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			on := !enabled.Load()
			enabled.Store(on)
			logger.Info("register dump toggled", "enabled", on)
		}
	}
}
