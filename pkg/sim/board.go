// Package sim provides a simulated sensor board so the hub can run on a host
// without hardware attached.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/hub"
	"github.com/itohio/gosensorhub/pkg/sensors"
)

// ErrNoResponse is returned by drivers of detached sensors.
var ErrNoResponse = errors.New("sensor did not respond")

// Board simulates the reference wiring. Each kind listed in
// MockConfig.Detached has nothing attached to it.
type Board struct {
	cfg      config.MockConfig
	clock    hub.Clock
	detached map[hub.Kind]bool

	mu    sync.Mutex
	chips map[string]*BMP280Chip
}

var _ hub.Board = (*Board)(nil)

// NewBoard creates a simulated board. clock drives the simulated signals.
func NewBoard(cfg *config.MockConfig, clock hub.Clock) (*Board, error) {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	b := &Board{
		cfg:      *cfg,
		clock:    clock,
		detached: make(map[hub.Kind]bool),
		chips:    make(map[string]*BMP280Chip),
	}
	for _, name := range cfg.Detached {
		kind, err := hub.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("detached sensor: %w", err)
		}
		b.detached[kind] = true
	}
	return b, nil
}

// noise returns a deterministic wobble of the configured amplitude.
func (b *Board) noise(phase float64) float64 {
	t := b.clock.Now().Seconds()
	return (math.Sin(t*0.7+phase) + math.Cos(t*1.3+phase)) * b.cfg.NoiseLevel * 0.5
}

// Chip returns the BMP280 emulation on bus, creating it on first use.
func (b *Board) Chip(bus string) *BMP280Chip {
	b.mu.Lock()
	defer b.mu.Unlock()
	chip, ok := b.chips[bus]
	if !ok {
		chip = NewBMP280Chip(0x76)
		b.chips[bus] = chip
	}
	return chip
}

func (b *Board) Thermohygrometer(pin int, model string) (hub.Thermohygrometer, error) {
	return &thermohygrometer{b: b, attached: !b.detached[hub.KindHumidityTemperature]}, nil
}

func (b *Board) OneWire(pin int) (hub.OneWireThermometer, error) {
	devices := 1
	if b.detached[hub.KindOneWireTemperature] {
		devices = 0
	}
	return &oneWire{b: b, devices: devices}, nil
}

func (b *Board) Barometer(bus string) (hub.Barometer, error) {
	chip := b.Chip(bus)
	if b.detached[hub.KindPressure] {
		// nothing answers at the sensor addresses
		chip = NewBMP280Chip(0)
	}
	return &barometer{BMP280: sensors.NewBMP280(chip), b: b, chip: chip}, nil
}

func (b *Board) Output(pin int) (hub.OutputPin, error) {
	return &output{}, nil
}

func (b *Board) Pulse(pin int) (hub.PulseReader, error) {
	return &echo{b: b, attached: !b.detached[hub.KindDistance]}, nil
}

func (b *Board) Digital(pin int) (hub.DigitalInput, error) {
	if b.detached[hub.KindMotion] {
		return nil, fmt.Errorf("pin %d: %w", pin, ErrNoResponse)
	}
	return &motion{b: b}, nil
}

func (b *Board) Analog(pin int) (hub.AnalogInput, error) {
	return &analogInput{b: b, pin: pin, attached: !b.detached[hub.KindAnalog]}, nil
}

type thermohygrometer struct {
	b        *Board
	attached bool
}

func (t *thermohygrometer) Begin() {}

func (t *thermohygrometer) ReadTemperature() (float32, error) {
	if !t.attached {
		return float32(math.NaN()), ErrNoResponse
	}
	return float32(t.b.cfg.Temperature + t.b.noise(0)), nil
}

func (t *thermohygrometer) ReadHumidity() (float32, error) {
	if !t.attached {
		return float32(math.NaN()), ErrNoResponse
	}
	return float32(t.b.cfg.Humidity + 10*t.b.noise(1)), nil
}

type oneWire struct {
	b       *Board
	devices int
	cursor  int
}

func (o *oneWire) Begin()       {}
func (o *oneWire) ResetSearch() { o.cursor = 0 }

func (o *oneWire) Search() ([8]byte, bool) {
	if o.cursor >= o.devices {
		return [8]byte{}, false
	}
	o.cursor++
	return [8]byte{0x28, 0xFF, 0x4C, 0x2D, 0x91, 0x16, 0x04, byte(o.cursor)}, true
}

func (o *oneWire) RequestTemperatures() error {
	if o.devices == 0 {
		return ErrNoResponse
	}
	return nil
}

func (o *oneWire) TemperatureByIndex(i int) (float32, error) {
	if i >= o.devices {
		return 0, ErrNoResponse
	}
	return float32(o.b.cfg.Temperature - 1.5 + o.b.noise(2)), nil
}

// barometer drives the emulated chip through the real driver, wobbling the
// raw pressure reading before each conversion.
type barometer struct {
	*sensors.BMP280
	b    *Board
	chip *BMP280Chip
}

func (p *barometer) ReadPressure() (float32, error) {
	p.chip.SetRaw(BMP280RawTemperature, BMP280RawPressure+int32(400*p.b.noise(3)))
	return p.BMP280.ReadPressure()
}

type output struct {
	level bool
}

func (o *output) High() { o.level = true }
func (o *output) Low()  { o.level = false }

type echo struct {
	b        *Board
	attached bool
}

func (e *echo) PulseIn(level bool, timeout time.Duration) (time.Duration, bool) {
	if !e.attached || !level {
		return 0, false
	}
	cm := e.b.cfg.Distance + 10*e.b.noise(4)
	width := time.Duration(cm * 2 / 0.0343 * float64(time.Microsecond))
	if width <= 0 || width > timeout {
		return 0, false
	}
	return width, true
}

type motion struct {
	b *Board
}

func (m *motion) Read() (bool, error) {
	every := m.b.cfg.MotionEvery
	if every <= 0 {
		return false, nil
	}
	return m.b.clock.Now()%every < m.b.cfg.MotionFor, nil
}

type analogInput struct {
	b        *Board
	pin      int
	attached bool
}

func (a *analogInput) Get() uint16 {
	if !a.attached {
		return 0
	}
	v := float64(a.b.cfg.Analog) + float64(a.pin%4)*37 + 100*a.b.noise(float64(a.pin))
	return uint16(math.Max(0, math.Min(v, math.MaxUint16)))
}
