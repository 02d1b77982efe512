package hub

import "time"

// Clock is the monotonic time source of the hub.
type Clock interface {
	// Now returns the time elapsed since boot.
	Now() time.Duration
	// Sleep blocks for d. Used for sensor settle delays and trigger pulses.
	Sleep(d time.Duration)
}

// Transport is the serial byte channel. It matches the shape of TinyGo's
// machine.UART: reads never block, Buffered reports what can be read now.
type Transport interface {
	Buffered() int
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

// Thermohygrometer is a combined temperature/humidity sensor (DHT family).
type Thermohygrometer interface {
	Begin()
	ReadTemperature() (float32, error) // °C
	ReadHumidity() (float32, error)    // %RH
}

// OneWireThermometer is a temperature sensor bus such as DS18B20. Search walks
// the device addresses on the bus; ResetSearch rewinds the walk.
type OneWireThermometer interface {
	Begin()
	ResetSearch()
	Search() (addr [8]byte, ok bool)
	RequestTemperatures() error
	TemperatureByIndex(i int) (float32, error) // °C
}

// Barometer is an I2C pressure sensor such as BMP280.
type Barometer interface {
	// Begin initializes the device at addr and reports whether it answered.
	Begin(addr uint16) bool
	ReadTemperature() (float32, error) // °C
	ReadPressure() (float32, error)    // Pa
}

// OutputPin is a digital output.
type OutputPin interface {
	High()
	Low()
}

// PulseReader measures the width of a pulse on a digital input.
type PulseReader interface {
	// PulseIn waits for a pulse at level and returns its width. ok is false
	// when no complete pulse was seen within timeout.
	PulseIn(level bool, timeout time.Duration) (width time.Duration, ok bool)
}

// DigitalInput is a digital input pin.
type DigitalInput interface {
	Read() (bool, error)
}

// AnalogInput is an ADC channel.
type AnalogInput interface {
	Get() uint16
}

// Board hands out the drivers behind each configured channel. A board that
// cannot provide a driver returns an error and the channel stays absent.
type Board interface {
	Thermohygrometer(pin int, model string) (Thermohygrometer, error)
	OneWire(pin int) (OneWireThermometer, error)
	Barometer(bus string) (Barometer, error)
	Output(pin int) (OutputPin, error)
	Pulse(pin int) (PulseReader, error)
	Digital(pin int) (DigitalInput, error)
	Analog(pin int) (AnalogInput, error)
}
