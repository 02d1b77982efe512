// Command simhub runs the hub firmware against a simulated board. It speaks
// the hub line protocol on stdin/stdout, or on a serial port when -p is
// given, so host tools can be exercised without hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/link"
	"github.com/itohio/gosensorhub/pkg/sim"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port to serve the hub on (empty = stdin/stdout)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		logLevelFlag = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevelFlag)); err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevelFlag, err)
	}
	// stdout carries the protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg, *portFlag, logger); err != nil {
		logger.Error("simulated hub stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, portName string, logger *slog.Logger) error {
	var (
		r io.Reader = os.Stdin
		w io.Writer = os.Stdout
	)
	if portName != "" {
		port, err := serial.Open(portName, &serial.Mode{BaudRate: cfg.Serial.Baud})
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", portName, err)
		}
		defer port.Close()
		r, w = port, port
		logger.Info("serving simulated hub", "port", portName, "baud", cfg.Serial.Baud)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := link.NewStreamTransport(r, w, 0)
	tr.Start(ctx)

	go func() {
		// stdin closed: nothing more will ever arrive
		<-tr.Done()
		stop()
	}()

	if err := sim.Run(ctx, cfg, tr, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
