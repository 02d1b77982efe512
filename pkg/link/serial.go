package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Serial represents a connection to a hub over a serial port.
type Serial struct {
	port     string
	baudRate int
	logger   *slog.Logger

	// open is serial.Open, replaced in tests.
	open func(port string, mode *serial.Mode) (io.ReadWriteCloser, error)

	conn      io.ReadWriteCloser
	frames    chan Frame
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
	closeOnce sync.Once
}

// New creates a new Serial device for the given port and baud rate.
func New(port string, baudRate int, opts ...Option) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	o := buildOptions(opts)

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		logger:   o.logger.With("port", port),
		open: func(port string, mode *serial.Mode) (io.ReadWriteCloser, error) {
			return serial.Open(port, mode)
		},
		frames: make(chan Frame, o.bufSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect opens the serial port and starts reading frames.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("device closed: %w", d.ctx.Err())
	}

	conn, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = conn
	d.connected = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		readFrames(d.ctx, conn, d.frames, d.logger)
		d.lost()
	}()

	return nil
}

// Close closes the port and stops reading. The frames channel is closed
// once the reader has exited. Closing a lost device is a no-op.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		d.logger.Error("error closing serial port", "error", err)
	}
	d.conn = nil
	d.connected = false
	d.mu.Unlock()

	d.wg.Wait()
	d.closeFrames()

	return nil
}

// lost tears the connection down when the reader stopped on its own, e.g.
// because the cable was pulled. The device cannot be reconnected; open a new
// one.
func (d *Serial) lost() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return
	}

	d.logger.Warn("serial link lost")
	d.cancel()
	if err := d.conn.Close(); err != nil {
		d.logger.Debug("error closing lost serial port", "error", err)
	}
	d.conn = nil
	d.connected = false
	d.closeFrames()
}

func (d *Serial) closeFrames() {
	d.closeOnce.Do(func() { close(d.frames) })
}

// Frames returns the channel of received frames.
func (d *Serial) Frames() <-chan Frame {
	return d.frames
}

// Send writes one command line to the hub.
func (d *Serial) Send(cmd string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	return writeCommand(d.conn, cmd)
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func writeCommand(w io.Writer, cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil
	}
	if _, err := io.WriteString(w, cmd+"\n"); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}
	return nil
}
