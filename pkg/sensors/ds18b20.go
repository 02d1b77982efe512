package sensors

import (
	"errors"
	"fmt"
	"time"

	"github.com/itohio/gosensorhub/pkg/hub"
)

// searchROM is the 1-Wire SEARCH ROM command.
const searchROM = 0xF0

// ConversionTime is the DS18B20 conversion time at 12-bit resolution.
const ConversionTime = 750 * time.Millisecond

var ErrNoDevice = errors.New("no device on bus")

var _ hub.OneWireThermometer = (*DS18B20)(nil)

// ROMSearcher enumerates the ROM codes on a 1-Wire bus, like onewire.Device.
type ROMSearcher interface {
	Search(cmd uint8) ([][]uint8, error)
}

// Thermometer converts and reads one DS18B20 by ROM code, like ds18b20.Device.
// ReadTemperature reports milli-°C.
type Thermometer interface {
	RequestTemperature(romid []uint8)
	ReadTemperature(romid []uint8) (int32, error)
}

// DS18B20 walks the thermometers found on a 1-Wire bus. The bus is scanned
// when a search starts from the first address; RequestTemperatures and
// TemperatureByIndex use the devices found by the latest scan.
type DS18B20 struct {
	bus   ROMSearcher
	dev   Thermometer
	clock hub.Clock

	roms   [][]uint8
	cursor int
}

// NewDS18B20 returns a thermometer bus. clock waits out the conversion.
func NewDS18B20(bus ROMSearcher, dev Thermometer, clock hub.Clock) *DS18B20 {
	return &DS18B20{bus: bus, dev: dev, clock: clock}
}

// Begin forgets the devices found so far.
func (d *DS18B20) Begin() {
	d.roms = nil
	d.cursor = 0
}

// ResetSearch rewinds the address walk.
func (d *DS18B20) ResetSearch() { d.cursor = 0 }

// Search returns the next address, scanning the bus on the first call after
// ResetSearch.
func (d *DS18B20) Search() (addr [8]byte, ok bool) {
	if d.cursor == 0 {
		d.scan()
	}
	if d.cursor >= len(d.roms) {
		return addr, false
	}
	copy(addr[:], d.roms[d.cursor])
	d.cursor++
	return addr, true
}

func (d *DS18B20) scan() {
	roms, err := d.bus.Search(searchROM)
	if err != nil {
		roms = nil
	}
	d.roms = roms
}

// RequestTemperatures starts a conversion on every known device and waits
// for it to finish.
func (d *DS18B20) RequestTemperatures() error {
	if len(d.roms) == 0 {
		return ErrNoDevice
	}
	for _, rom := range d.roms {
		d.dev.RequestTemperature(rom)
	}
	d.clock.Sleep(ConversionTime)
	return nil
}

// TemperatureByIndex reads the i-th device found by the latest scan, in °C.
func (d *DS18B20) TemperatureByIndex(i int) (float32, error) {
	if i < 0 || i >= len(d.roms) {
		return 0, fmt.Errorf("%w: index %d", ErrNoDevice, i)
	}
	mc, err := d.dev.ReadTemperature(d.roms[i])
	if err != nil {
		return 0, err
	}
	return float32(mc) / 1000, nil
}
