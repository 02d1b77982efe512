package hub

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/protocol"
)

var errNotWired = errors.New("not wired")

// fakeClock advances only when slept on, or by step on every Now call.
type fakeClock struct {
	now  time.Duration
	step time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.now += c.step
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) { c.now += d }

func (c *fakeClock) advance(d time.Duration) { c.now += d }

// fakeTransport feeds queued input bytes and records output.
type fakeTransport struct {
	in  []byte
	out bytes.Buffer
}

func (t *fakeTransport) Buffered() int { return len(t.in) }

func (t *fakeTransport) ReadByte() (byte, error) {
	if len(t.in) == 0 {
		return 0, errors.New("empty")
	}
	b := t.in[0]
	t.in = t.in[1:]
	return b, nil
}

func (t *fakeTransport) Write(p []byte) (int, error) { return t.out.Write(p) }

func (t *fakeTransport) send(s string) { t.in = append(t.in, s...) }

// messages decodes and drains everything written so far.
func (t *fakeTransport) messages(tb testing.TB) []protocol.Message {
	tb.Helper()
	var msgs []protocol.Message
	for _, line := range strings.SplitAfter(t.out.String(), protocol.Newline) {
		if line == "" {
			continue
		}
		require.True(tb, strings.HasSuffix(line, protocol.Newline), "unterminated line %q", line)
		m, err := protocol.Decode(line)
		require.NoError(tb, err)
		msgs = append(msgs, m)
	}
	t.out.Reset()
	return msgs
}

type fakeDHT struct {
	temp, hum       float32
	tempErr, humErr error
	begun           bool
}

func (d *fakeDHT) Begin()                            { d.begun = true }
func (d *fakeDHT) ReadTemperature() (float32, error) { return d.temp, d.tempErr }
func (d *fakeDHT) ReadHumidity() (float32, error)    { return d.hum, d.humErr }

type fakeOneWire struct {
	devices  int
	temp     float32
	cursor   int
	resets   int
	requests int
}

func (o *fakeOneWire) Begin()       {}
func (o *fakeOneWire) ResetSearch() { o.cursor = 0; o.resets++ }

func (o *fakeOneWire) Search() ([8]byte, bool) {
	if o.cursor >= o.devices {
		return [8]byte{}, false
	}
	o.cursor++
	return [8]byte{0x28, byte(o.cursor)}, true
}

func (o *fakeOneWire) RequestTemperatures() error { o.requests++; return nil }

func (o *fakeOneWire) TemperatureByIndex(i int) (float32, error) {
	if i >= o.devices {
		return 0, errors.New("no device")
	}
	return o.temp, nil
}

type fakeBarometer struct {
	addr     uint16
	tried    []uint16
	temp     float32
	pressure float32
}

func (b *fakeBarometer) Begin(addr uint16) bool {
	b.tried = append(b.tried, addr)
	return addr == b.addr
}

func (b *fakeBarometer) ReadTemperature() (float32, error) { return b.temp, nil }
func (b *fakeBarometer) ReadPressure() (float32, error)    { return b.pressure, nil }

type fakeOutput struct {
	edges []bool
}

func (p *fakeOutput) High() { p.edges = append(p.edges, true) }
func (p *fakeOutput) Low()  { p.edges = append(p.edges, false) }

type fakePulse struct {
	width   time.Duration
	timeout time.Duration
}

func (p *fakePulse) PulseIn(level bool, timeout time.Duration) (time.Duration, bool) {
	p.timeout = timeout
	if !level || p.width == 0 {
		return 0, false
	}
	return p.width, true
}

type fakeDigital struct {
	level bool
	err   error
}

func (d *fakeDigital) Read() (bool, error) { return d.level, d.err }

type fakeAnalog uint16

func (a *fakeAnalog) Get() uint16 { return uint16(*a) }

// fakeBoard wires only the drivers that are set; everything else fails.
type fakeBoard struct {
	dht     *fakeDHT
	ow      *fakeOneWire
	baro    *fakeBarometer
	trig    *fakeOutput
	echo    *fakePulse
	motion  *fakeDigital
	analogs map[int]*fakeAnalog
}

func (b *fakeBoard) Thermohygrometer(int, string) (Thermohygrometer, error) {
	if b.dht == nil {
		return nil, errNotWired
	}
	return b.dht, nil
}

func (b *fakeBoard) OneWire(int) (OneWireThermometer, error) {
	if b.ow == nil {
		return nil, errNotWired
	}
	return b.ow, nil
}

func (b *fakeBoard) Barometer(string) (Barometer, error) {
	if b.baro == nil {
		return nil, errNotWired
	}
	return b.baro, nil
}

func (b *fakeBoard) Output(int) (OutputPin, error) {
	if b.trig == nil {
		return nil, errNotWired
	}
	return b.trig, nil
}

func (b *fakeBoard) Pulse(int) (PulseReader, error) {
	if b.echo == nil {
		return nil, errNotWired
	}
	return b.echo, nil
}

func (b *fakeBoard) Digital(int) (DigitalInput, error) {
	if b.motion == nil {
		return nil, errNotWired
	}
	return b.motion, nil
}

func (b *fakeBoard) Analog(pin int) (AnalogInput, error) {
	a, ok := b.analogs[pin]
	if !ok {
		return nil, errNotWired
	}
	return a, nil
}

func analog(v uint16) *fakeAnalog {
	a := fakeAnalog(v)
	return &a
}

// fullBoard answers on every reference channel. Analog pins 16 and 17 read 0.
func fullBoard() *fakeBoard {
	return &fakeBoard{
		dht:    &fakeDHT{temp: 21.5, hum: 40},
		ow:     &fakeOneWire{devices: 1, temp: 19.25},
		baro:   &fakeBarometer{addr: 0x77, temp: 22, pressure: 101325},
		trig:   &fakeOutput{},
		echo:   &fakePulse{width: time.Millisecond},
		motion: &fakeDigital{level: true},
		analogs: map[int]*fakeAnalog{
			14: analog(512),
			15: analog(1023),
			16: analog(0),
			17: analog(0),
		},
	}
}

// distanceBoard has only the ultrasonic ranger attached.
func distanceBoard() *fakeBoard {
	return &fakeBoard{
		dht:  &fakeDHT{tempErr: errors.New("timeout"), humErr: errors.New("timeout")},
		ow:   &fakeOneWire{},
		baro: &fakeBarometer{},
		trig: &fakeOutput{},
		echo: &fakePulse{width: 580 * time.Microsecond},
		analogs: map[int]*fakeAnalog{
			14: analog(0), 15: analog(0), 16: analog(0), 17: analog(0),
		},
	}
}

func newTestHub(t *testing.T, board Board) (*Hub, *fakeClock, *fakeTransport) {
	t.Helper()
	clk := &fakeClock{}
	tr := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.IdleDelay = 0
	h, err := New(cfg, board, clk, tr)
	require.NoError(t, err)
	return h, clk, tr
}

func bootedHub(t *testing.T, board Board) (*Hub, *fakeClock, *fakeTransport) {
	t.Helper()
	h, clk, tr := newTestHub(t, board)
	h.Boot()
	tr.messages(t)
	return h, clk, tr
}

func types(msgs []protocol.Message) []protocol.Type {
	out := make([]protocol.Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func filter(msgs []protocol.Message, typ protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
