// Package link connects the host to a sensor hub, either over a serial port
// or to an in-process simulated hub, and delivers decoded protocol messages.
package link

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/itohio/gosensorhub/pkg/protocol"
)

const (
	// DefaultBaudRate is the hub's UART speed.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the frames channel buffer.
	DefaultBufferSize = 100
)

var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// Frame is a message received from the hub.
type Frame struct {
	Received time.Time
	protocol.Message
}

// Device is a connection to a hub (real or simulated).
type Device interface {
	Connect() error
	Close() error
	// Frames is closed after Close.
	Frames() <-chan Frame
	// Send writes one command line.
	Send(cmd string) error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

// Option configures a device.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	bufSize int
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), bufSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger for link diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBufferSize sets the capacity of the frames channel.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Fall back to plain names when details are unavailable
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		result := make([]Port, 0, len(names))
		for _, name := range names {
			result = append(result, Port{Name: name, Description: name})
		}
		return result, nil
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		result = append(result, Port{Name: d.Name, Description: describe(d)})
	}
	return result, nil
}

func describe(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return d.Name
	}
	desc := fmt.Sprintf("%s [%s:%s]", d.Name, d.VID, d.PID)
	if d.Product != "" {
		desc += " " + d.Product
	}
	return desc
}
