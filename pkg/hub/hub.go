// Package hub implements the sensor hub firmware core: boot-time detection
// of the configured channels, periodic sampling, heartbeats and the serial
// command processor, driven by a cooperative single-threaded loop.
//
// The hub owns all of its state and is not safe for concurrent use. Drivers
// and the transport are supplied by the caller (see Board and Transport), so
// the same core runs on TinyGo hardware, on a host with simulated sensors,
// and in tests.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/itohio/gosensorhub/pkg/protocol"
)

// State is the mutable scheduler state.
type State struct {
	Streaming      bool
	SampleInterval time.Duration
	LastSample     time.Duration
	LastHeartbeat  time.Duration
}

// Mode returns the heartbeat mode for the current streaming flag.
func (s State) Mode() protocol.Mode {
	if s.Streaming {
		return protocol.ModeStreaming
	}
	return protocol.ModePaused
}

// setSampleInterval applies a SET_RATE value in milliseconds, saturating at
// MaxSampleInterval.
func (s *State) setSampleInterval(ms int64) error {
	if ms < MinSampleInterval.Milliseconds() {
		return ErrIntervalTooLow
	}
	s.SampleInterval = time.Duration(min(ms, MaxSampleInterval.Milliseconds())) * time.Millisecond
	return nil
}

// Hub is the sensor hub.
type Hub struct {
	cfg      Config
	clock    Clock
	io       Transport
	enc      *protocol.Encoder
	logger   *slog.Logger
	sensors  []sensor
	registry Registry
	state    State
	line     *LineBuffer
	values   []protocol.Value
	booted   bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for transport and driver diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New builds a hub for cfg. Channels are ordered by kind; a channel whose
// driver the board cannot provide is kept and simply never detected.
func New(cfg Config, board Board, clock Clock, t Transport, opts ...Option) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	h := &Hub{
		cfg:    cfg,
		clock:  clock,
		io:     t,
		enc:    protocol.NewEncoder(t),
		logger: slog.New(slog.DiscardHandler),
		line:   NewLineBuffer(cfg.CommandBufferSize),
		state: State{
			Streaming:      true,
			SampleInterval: cfg.SampleInterval,
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	specs := make([]ChannelSpec, len(cfg.Channels))
	for i, spec := range cfg.Channels {
		specs[i] = spec.withDefaults()
	}
	slices.SortStableFunc(specs, func(a, b ChannelSpec) int { return int(a.Kind) - int(b.Kind) })

	for _, spec := range specs {
		s, err := newSensor(spec, board, cfg.EchoTimeout)
		if err != nil {
			if s == nil {
				return nil, fmt.Errorf("channel %s: %w", spec.Name, err)
			}
			h.logger.Warn("channel driver unavailable", "channel", spec.Name, "kind", spec.Kind, "error", err)
		}
		h.sensors = append(h.sensors, s)
	}
	return h, nil
}

// State returns a copy of the scheduler state.
func (h *Hub) State() State { return h.state }

// Registry returns the channel presence registry.
func (h *Hub) Registry() *Registry { return &h.registry }

// Channels returns the channel table in detection order with presence flags.
func (h *Hub) Channels() []Channel {
	out := make([]Channel, len(h.sensors))
	for i, s := range h.sensors {
		out[i] = Channel{ChannelSpec: s.spec(), Present: h.registry.Present(i)}
	}
	return out
}

// Boot runs the start-up sequence: boot log, detection, inventory, heartbeat
// and tick initialization. Only the first call has an effect.
func (h *Hub) Boot() {
	if h.booted {
		return
	}
	h.booted = true

	h.sendLog(h.cfg.BootMessage)
	h.detect()
	h.sendInventory()
	h.sendHeartbeat()

	now := h.clock.Now()
	h.state.LastSample = now
	h.state.LastHeartbeat = now
}

// detect checks every channel once, in table order.
func (h *Hub) detect() {
	present := make([]bool, len(h.sensors))
	for i, s := range h.sensors {
		present[i] = s.attached(h.clock)
		h.logger.Debug("channel detected", "channel", s.spec().Name, "kind", s.spec().Kind, "present", present[i])
	}
	h.registry.populate(present)
}

// Update runs one loop iteration. It returns ErrReset when a RESET command
// was processed; the caller is expected to restart the device.
func (h *Hub) Update() error {
	now := h.clock.Now()

	if err := h.poll(); err != nil {
		return err
	}

	if now-h.state.LastHeartbeat >= h.cfg.HeartbeatPeriod {
		h.sendHeartbeat()
		h.state.LastHeartbeat = now
	}

	if !h.state.Streaming {
		return nil
	}

	if now-h.state.LastSample >= h.state.SampleInterval {
		h.Sample()
		h.state.LastSample = now
	}
	return nil
}

// Run boots the hub if needed and loops until ctx is done or a reset is
// requested.
func (h *Hub) Run(ctx context.Context) error {
	h.Boot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := h.Update(); err != nil {
			return err
		}
		if h.cfg.IdleDelay > 0 {
			h.clock.Sleep(h.cfg.IdleDelay)
		}
	}
}

// poll drains the buffered input and dispatches complete lines.
func (h *Hub) poll() error {
	for h.io.Buffered() > 0 {
		b, err := h.io.ReadByte()
		if err != nil {
			break
		}
		line, ok := h.line.Feed(b)
		if !ok {
			continue
		}
		if err := h.Execute(line); errors.Is(err, ErrReset) {
			h.line.Reset()
			return err
		}
	}
	return nil
}

// Sample emits one DATA message per present channel.
func (h *Hub) Sample() {
	for i, s := range h.sensors {
		if !h.registry.Present(i) {
			continue
		}
		h.values = s.sample(h.clock, h.values[:0])
		h.emit(protocol.Data(h.millis(), s.spec().Name, h.values...))
	}
}

// inventory lists the present channels. Analog channels sharing a name are
// grouped into one entry at the position of the first of them.
func (h *Hub) inventory() []protocol.SensorInfo {
	sensors := make([]protocol.SensorInfo, 0, len(h.sensors))
	groups := make(map[string]int)
	for i, s := range h.sensors {
		if !h.registry.Present(i) {
			continue
		}
		name := s.spec().Name
		if a, ok := s.(*analogSensor); ok {
			idx, seen := groups[name]
			if !seen {
				idx = len(sensors)
				groups[name] = idx
				sensors = append(sensors, protocol.SensorInfo{Name: name, Channels: []string{}})
			}
			sensors[idx].Channels = append(sensors[idx].Channels, a.identity())
			continue
		}
		sensors = append(sensors, protocol.SensorInfo{Name: name, Attrs: s.attrs()})
	}
	return sensors
}

func (h *Hub) millis() int64 {
	return h.clock.Now().Milliseconds()
}

func (h *Hub) emit(m protocol.Message) {
	if err := h.enc.Encode(m); err != nil {
		h.logger.Error("failed to write message", "type", m.Type, "error", err)
	}
}

func (h *Hub) sendLog(text string)   { h.emit(protocol.Log(h.millis(), text)) }
func (h *Hub) sendError(text string) { h.emit(protocol.Error(h.millis(), text)) }

func (h *Hub) sendInventory() {
	h.emit(protocol.Inventory(h.millis(), h.inventory()))
}

func (h *Hub) sendHeartbeat() {
	h.emit(protocol.Heartbeat(h.millis(), h.state.SampleInterval.Milliseconds(), h.state.Mode()))
}
