package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/hub"
	"github.com/itohio/gosensorhub/pkg/sim"
)

// Mock runs a hub on a simulated board inside the process and talks to it
// through in-memory pipes, exactly as Serial talks to real hardware. RESET
// restarts the simulated hub.
type Mock struct {
	cfg    *config.Config
	logger *slog.Logger

	frames    chan Frame
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool

	cmdW *io.PipeWriter // host -> hub
	outR *io.PipeReader // hub -> host
	outW *io.PipeWriter
}

// NewMock creates a new simulated hub. A nil cfg uses config.Default().
func NewMock(cfg *config.Config, opts ...Option) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}
	o := buildOptions(opts)

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:    cfg,
		logger: o.logger.With("device", "mock"),
		frames: make(chan Frame, o.bufSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect boots the simulated hub.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}
	if m.ctx.Err() != nil {
		return fmt.Errorf("device closed: %w", m.ctx.Err())
	}

	hc, err := m.cfg.HubConfig()
	if err != nil {
		return fmt.Errorf("invalid hub config: %w", err)
	}
	if err := hc.Validate(); err != nil {
		return fmt.Errorf("invalid hub config: %w", err)
	}

	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	m.cmdW, m.outR, m.outW = cmdW, outR, outW

	tr := NewStreamTransport(cmdR, outW, 0)
	tr.Start(m.ctx)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		readFrames(m.ctx, outR, m.frames, m.logger)
	}()
	go func() {
		defer m.wg.Done()
		m.runHub(tr)
	}()

	m.connected = true
	return nil
}

// runHub runs the simulated firmware until the device is closed.
func (m *Mock) runHub(tr hub.Transport) {
	err := sim.Run(m.ctx, m.cfg, tr, m.logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("simulated hub stopped", "error", err)
	}
}

// Close stops the simulated hub. The frames channel is closed once every
// goroutine has exited.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}

	m.cancel()
	m.cmdW.Close()
	m.outW.CloseWithError(io.ErrClosedPipe)
	m.outR.Close()
	m.connected = false
	m.mu.Unlock()

	m.wg.Wait()
	close(m.frames)

	return nil
}

// Frames returns the channel of received frames.
func (m *Mock) Frames() <-chan Frame {
	return m.frames
}

// Send writes one command line to the simulated hub.
func (m *Mock) Send(cmd string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return ErrNotConnected
	}
	return writeCommand(m.cmdW, cmd)
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}
