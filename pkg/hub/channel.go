package hub

import (
	"fmt"
	"strings"
)

// Kind is the sensor integration type of a channel. The order of the
// constants is the detection, inventory and sampling order.
type Kind int

const (
	KindHumidityTemperature Kind = iota // DHT11/DHT22
	KindOneWireTemperature              // DS18B20
	KindPressure                        // BMP280
	KindDistance                        // HC-SR04
	KindMotion                          // PIR
	KindAnalog                          // raw ADC pin
)

var kindNames = [...]string{
	KindHumidityTemperature: "dht",
	KindOneWireTemperature:  "ds18b20",
	KindPressure:            "bmp280",
	KindDistance:            "hcsr04",
	KindMotion:              "pir",
	KindAnalog:              "analog",
}

// wire names used in INVENTORY and DATA when a channel has no explicit name.
var defaultNames = [...]string{
	KindHumidityTemperature: "DHT",
	KindOneWireTemperature:  "DS18B20",
	KindPressure:            "BMP280",
	KindDistance:            "HC_SR04",
	KindMotion:              "PIR",
	KindAnalog:              "ANALOG",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// DefaultName returns the wire name used for channels of this kind.
func (k Kind) DefaultName() string {
	if k < 0 || int(k) >= len(defaultNames) {
		return ""
	}
	return defaultNames[k]
}

// ParseKind maps a configuration name ("dht", "bmp280", ...) to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ChannelSpec describes one physical sensor integration.
type ChannelSpec struct {
	Kind Kind
	// Name is the sensor name on the wire. Defaults to Kind.DefaultName().
	Name string
	// Pin is the data pin (DHT, DS18B20, PIR) or the ADC pin (analog).
	Pin int
	// Trigger and Echo are the HC-SR04 pins.
	Trigger int
	Echo    int
	// Bus selects the I2C bus of a pressure sensor.
	Bus string
	// Addresses are tried in order when probing a pressure sensor.
	Addresses []uint16
	// Model is the DHT variant reported in the inventory.
	Model string
	// Label overrides the pin description reported in the inventory.
	Label string
}

func (s ChannelSpec) withDefaults() ChannelSpec {
	if s.Name == "" {
		s.Name = s.Kind.DefaultName()
	}
	switch s.Kind {
	case KindHumidityTemperature:
		if s.Model == "" {
			s.Model = DefaultDHTModel
		}
	case KindPressure:
		if len(s.Addresses) == 0 {
			s.Addresses = append([]uint16(nil), DefaultBarometerAddresses...)
		}
	}
	return s
}

// Channel is a configured channel together with its boot-time presence.
type Channel struct {
	ChannelSpec
	Present bool
}

// Registry holds the presence flag of every channel. It is filled once by
// detection and never changes afterwards.
type Registry struct {
	present []bool
	sealed  bool
}

// Present reports whether channel i was detected at boot.
func (r *Registry) Present(i int) bool {
	if i < 0 || i >= len(r.present) {
		return false
	}
	return r.present[i]
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	return len(r.present)
}

// Count returns the number of present channels.
func (r *Registry) Count() int {
	n := 0
	for _, p := range r.present {
		if p {
			n++
		}
	}
	return n
}

// populate records detection results. Only the first call has an effect.
func (r *Registry) populate(present []bool) {
	if r.sealed {
		return
	}
	r.present = append(r.present[:0], present...)
	r.sealed = true
}
