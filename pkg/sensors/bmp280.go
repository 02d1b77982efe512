// Package sensors adapts TinyGo device drivers to the hub's capability
// interfaces. Only drivers that do not depend on the machine package live
// here, so they can be exercised on the host as well as on the board.
package sensors

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bmp280"

	"github.com/itohio/gosensorhub/pkg/hub"
)

var _ hub.Barometer = (*BMP280)(nil)

// BMP280 is a pressure/temperature sensor on an I2C bus.
type BMP280 struct {
	dev bmp280.Device
}

// NewBMP280 returns a sensor on bus. Begin selects the address.
func NewBMP280(bus drivers.I2C) *BMP280 {
	return &BMP280{dev: bmp280.New(bus)}
}

// Begin checks addr and configures the device for forced-mode measurements.
func (b *BMP280) Begin(addr uint16) bool {
	b.dev.Address = addr
	if !b.dev.Connected() {
		return false
	}
	b.dev.Configure(bmp280.STANDBY_125MS, bmp280.FILTER_4X, bmp280.SAMPLING_16X, bmp280.SAMPLING_16X, bmp280.MODE_FORCED)
	return true
}

// ReadTemperature returns the temperature in °C.
func (b *BMP280) ReadTemperature() (float32, error) {
	mc, err := b.dev.ReadTemperature()
	if err != nil {
		return 0, err
	}
	return float32(mc) / 1000, nil
}

// ReadPressure returns the pressure in Pa.
func (b *BMP280) ReadPressure() (float32, error) {
	mpa, err := b.dev.ReadPressure()
	if err != nil {
		return 0, err
	}
	return float32(mpa) / 1000, nil
}

// Address returns the address selected by the last successful Begin.
func (b *BMP280) Address() uint16 { return b.dev.Address }
