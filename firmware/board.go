//go:build tinygo

package main

import (
	"errors"
	"fmt"
	"machine"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/dht"
	"tinygo.org/x/drivers/ds18b20"
	"tinygo.org/x/drivers/onewire"

	"github.com/itohio/gosensorhub/pkg/hub"
	"github.com/itohio/gosensorhub/pkg/sensors"
)

var (
	errNoPin = errors.New("pin not wired")
	errNoBus = errors.New("bus not wired")
)

// board hands out drivers for the pins and buses of the microcontroller.
type board struct {
	clock hub.Clock
	buses map[string]drivers.I2C
}

var _ hub.Board = (*board)(nil)

func newBoard(clock hub.Clock) *board {
	i2c := machine.I2C0
	_ = i2c.Configure(machine.I2CConfig{})

	return &board{
		clock: clock,
		buses: map[string]drivers.I2C{BAROMETER_BUS: i2c},
	}
}

func (b *board) pin(n int, mode machine.PinMode) (machine.Pin, error) {
	p, ok := pinMap[n]
	if !ok {
		return machine.NoPin, fmt.Errorf("%w: %d", errNoPin, n)
	}
	p.Configure(machine.PinConfig{Mode: mode})
	return p, nil
}

func (b *board) Thermohygrometer(pin int, model string) (hub.Thermohygrometer, error) {
	p, err := b.pin(pin, machine.PinInput)
	if err != nil {
		return nil, err
	}
	typ := dht.DHT22
	if model == "DHT11" {
		typ = dht.DHT11
	}
	return &thermohygrometer{dev: dht.New(p, typ)}, nil
}

func (b *board) OneWire(pin int) (hub.OneWireThermometer, error) {
	p, err := b.pin(pin, machine.PinInput)
	if err != nil {
		return nil, err
	}
	bus := onewire.New(p)
	bus.Configure(onewire.Config{})
	return sensors.NewDS18B20(bus, ds18b20.New(bus), b.clock), nil
}

func (b *board) Barometer(name string) (hub.Barometer, error) {
	bus, ok := b.buses[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoBus, name)
	}
	return sensors.NewBMP280(bus), nil
}

func (b *board) Output(pin int) (hub.OutputPin, error) {
	p, err := b.pin(pin, machine.PinOutput)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b *board) Pulse(pin int) (hub.PulseReader, error) {
	p, err := b.pin(pin, machine.PinInput)
	if err != nil {
		return nil, err
	}
	return &pulsePin{pin: p, clock: b.clock}, nil
}

func (b *board) Digital(pin int) (hub.DigitalInput, error) {
	p, err := b.pin(pin, machine.PinInput)
	if err != nil {
		return nil, err
	}
	return digitalPin{pin: p}, nil
}

func (b *board) Analog(pin int) (hub.AnalogInput, error) {
	p, ok := pinMap[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errNoPin, pin)
	}
	adc := machine.ADC{Pin: p}
	adc.Configure(machine.ADCConfig{})
	return analogPin{adc: adc}, nil
}

// thermohygrometer reads a DHT sensor. The driver reports tenths.
type thermohygrometer struct {
	dev dht.Device
}

func (t *thermohygrometer) Begin() {}

func (t *thermohygrometer) ReadTemperature() (float32, error) {
	v, err := t.dev.Temperature()
	if err != nil {
		return 0, err
	}
	return float32(v) / 10, nil
}

func (t *thermohygrometer) ReadHumidity() (float32, error) {
	v, err := t.dev.Humidity()
	if err != nil {
		return 0, err
	}
	return float32(v) / 10, nil
}

// pulsePin measures echo pulses by busy-waiting on the pin.
type pulsePin struct {
	pin   machine.Pin
	clock hub.Clock
}

func (p *pulsePin) PulseIn(level bool, timeout time.Duration) (time.Duration, bool) {
	return hub.MeasurePulse(p.pin, p.clock, level, timeout)
}

type digitalPin struct {
	pin machine.Pin
}

func (d digitalPin) Read() (bool, error) { return d.pin.Get(), nil }

// analogPin scales the 16-bit ADC reading down to 10 bits.
type analogPin struct {
	adc machine.ADC
}

func (a analogPin) Get() uint16 { return a.adc.Get() >> 6 }
