package hub

import (
	"strconv"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/gosensorhub/pkg/protocol"
)

// sensor is the per-kind behaviour behind a channel.
type sensor interface {
	spec() ChannelSpec
	// attached performs the boot-time presence check.
	attached(clk Clock) bool
	// sample appends the current reading to dst.
	sample(clk Clock, dst []protocol.Value) []protocol.Value
	// attrs describes the channel in the inventory.
	attrs() []protocol.Attr
}

// newSensor binds spec to the drivers provided by board. A nil driver is kept
// when the board cannot provide one, so the channel is detected as absent.
func newSensor(spec ChannelSpec, board Board, echoTimeout time.Duration) (sensor, error) {
	switch spec.Kind {
	case KindHumidityTemperature:
		drv, err := board.Thermohygrometer(spec.Pin, spec.Model)
		return &dhtSensor{cfg: spec, drv: drv}, err
	case KindOneWireTemperature:
		drv, err := board.OneWire(spec.Pin)
		return &oneWireSensor{cfg: spec, drv: drv}, err
	case KindPressure:
		drv, err := board.Barometer(spec.Bus)
		return &barometerSensor{cfg: spec, drv: drv}, err
	case KindDistance:
		s := &rangerSensor{cfg: spec, timeout: echoTimeout}
		trig, err := board.Output(spec.Trigger)
		if err != nil {
			return s, err
		}
		echo, err := board.Pulse(spec.Echo)
		if err != nil {
			return s, err
		}
		s.trig, s.echo = trig, echo
		return s, nil
	case KindMotion:
		drv, err := board.Digital(spec.Pin)
		return &motionSensor{cfg: spec, drv: drv}, err
	case KindAnalog:
		drv, err := board.Analog(spec.Pin)
		return &analogSensor{cfg: spec, drv: drv}, err
	}
	return nil, ErrUnknownKind
}

func valid(v float32, err error) bool {
	return err == nil && !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Altitude converts a pressure in Pa to metres above the reference sea level
// pressure (hPa), using the international barometric formula.
func Altitude(pressurePa, seaLevelHPa float32) float32 {
	return 44330 * (1 - math32.Pow(pressurePa/100/seaLevelHPa, 0.1903))
}

// DistanceCM converts an ultrasonic echo width to centimetres.
func DistanceCM(echo time.Duration) float32 {
	us := float32(echo) / float32(time.Microsecond)
	return us / 2 * 0.0343
}

type dhtSensor struct {
	cfg ChannelSpec
	drv Thermohygrometer
}

func (s *dhtSensor) spec() ChannelSpec { return s.cfg }

func (s *dhtSensor) attached(clk Clock) bool {
	if s.drv == nil {
		return false
	}
	s.drv.Begin()
	clk.Sleep(dhtSettle)
	t, terr := s.drv.ReadTemperature()
	h, herr := s.drv.ReadHumidity()
	return valid(t, terr) || valid(h, herr)
}

func (s *dhtSensor) sample(_ Clock, dst []protocol.Value) []protocol.Value {
	t, terr := s.drv.ReadTemperature()
	h, herr := s.drv.ReadHumidity()
	if valid(t, terr) {
		dst = append(dst, protocol.FloatValue("temperature_c", t))
	}
	if valid(h, herr) {
		dst = append(dst, protocol.FloatValue("humidity_pct", h))
	}
	return dst
}

func (s *dhtSensor) attrs() []protocol.Attr {
	return []protocol.Attr{{Key: "model", Value: s.cfg.Model}}
}

type oneWireSensor struct {
	cfg ChannelSpec
	drv OneWireThermometer
}

func (s *oneWireSensor) spec() ChannelSpec { return s.cfg }

func (s *oneWireSensor) attached(clk Clock) bool {
	if s.drv == nil {
		return false
	}
	s.drv.Begin()
	clk.Sleep(oneWireSettle)
	s.drv.ResetSearch()
	_, found := s.drv.Search()
	s.drv.ResetSearch()
	return found
}

func (s *oneWireSensor) sample(_ Clock, dst []protocol.Value) []protocol.Value {
	if err := s.drv.RequestTemperatures(); err != nil {
		return dst
	}
	if t, err := s.drv.TemperatureByIndex(0); valid(t, err) {
		dst = append(dst, protocol.FloatValue("temperature_c", t))
	}
	return dst
}

func (s *oneWireSensor) attrs() []protocol.Attr {
	return []protocol.Attr{{Key: "bus", Value: "OneWire"}}
}

type barometerSensor struct {
	cfg ChannelSpec
	drv Barometer
}

func (s *barometerSensor) spec() ChannelSpec { return s.cfg }

func (s *barometerSensor) attached(Clock) bool {
	if s.drv == nil {
		return false
	}
	for _, addr := range s.cfg.Addresses {
		if s.drv.Begin(addr) {
			return true
		}
	}
	return false
}

func (s *barometerSensor) sample(_ Clock, dst []protocol.Value) []protocol.Value {
	t, terr := s.drv.ReadTemperature()
	p, perr := s.drv.ReadPressure()
	if valid(t, terr) {
		dst = append(dst, protocol.FloatValue("temperature_c", t))
	}
	if valid(p, perr) {
		dst = append(dst, protocol.FloatValue("pressure_pa", p))
		if a := Altitude(p, SeaLevelPressure); valid(a, nil) {
			dst = append(dst, protocol.FloatValue("altitude_m", a))
		}
	}
	return dst
}

func (s *barometerSensor) attrs() []protocol.Attr {
	return []protocol.Attr{{Key: "bus", Value: "I2C"}}
}

type rangerSensor struct {
	cfg     ChannelSpec
	trig    OutputPin
	echo    PulseReader
	timeout time.Duration
}

func (s *rangerSensor) spec() ChannelSpec { return s.cfg }

// measure fires one trigger pulse and returns the echo width, 0 on timeout.
func (s *rangerSensor) measure(clk Clock) time.Duration {
	s.trig.Low()
	clk.Sleep(triggerIdle)
	s.trig.High()
	clk.Sleep(triggerPulse)
	s.trig.Low()
	width, ok := s.echo.PulseIn(true, s.timeout)
	if !ok {
		return 0
	}
	return width
}

func (s *rangerSensor) attached(clk Clock) bool {
	if s.trig == nil || s.echo == nil {
		return false
	}
	return s.measure(clk) > 0
}

func (s *rangerSensor) sample(clk Clock, dst []protocol.Value) []protocol.Value {
	return append(dst, protocol.FloatValue("distance_cm", DistanceCM(s.measure(clk))))
}

func (s *rangerSensor) attrs() []protocol.Attr {
	pins := s.cfg.Label
	if pins == "" {
		pins = "TRIG:D" + strconv.Itoa(s.cfg.Trigger) + ",ECHO:D" + strconv.Itoa(s.cfg.Echo)
	}
	return []protocol.Attr{{Key: "pins", Value: pins}}
}

type motionSensor struct {
	cfg ChannelSpec
	drv DigitalInput
}

func (s *motionSensor) spec() ChannelSpec { return s.cfg }

// attached treats any readable level as a connected sensor.
func (s *motionSensor) attached(Clock) bool {
	if s.drv == nil {
		return false
	}
	_, err := s.drv.Read()
	return err == nil
}

func (s *motionSensor) sample(_ Clock, dst []protocol.Value) []protocol.Value {
	level, err := s.drv.Read()
	if err != nil {
		return dst
	}
	var motion int64
	if level {
		motion = 1
	}
	return append(dst, protocol.IntValue("motion", motion))
}

func (s *motionSensor) attrs() []protocol.Attr {
	pin := s.cfg.Label
	if pin == "" {
		pin = strconv.Itoa(s.cfg.Pin)
	}
	return []protocol.Attr{{Key: "pin", Value: pin}}
}

type analogSensor struct {
	cfg ChannelSpec
	drv AnalogInput
}

func (s *analogSensor) spec() ChannelSpec { return s.cfg }

// attached treats a zero reading as a disconnected input.
func (s *analogSensor) attached(Clock) bool {
	if s.drv == nil {
		return false
	}
	return s.drv.Get() > 0
}

func (s *analogSensor) sample(_ Clock, dst []protocol.Value) []protocol.Value {
	return append(dst,
		protocol.IntValue("pin", int64(s.cfg.Pin)),
		protocol.IntValue("raw", int64(s.drv.Get())))
}

func (s *analogSensor) attrs() []protocol.Attr { return nil }

// identity is the channel identity listed under a grouped inventory entry.
func (s *analogSensor) identity() string {
	if s.cfg.Label != "" {
		return s.cfg.Label
	}
	return strconv.Itoa(s.cfg.Pin)
}
