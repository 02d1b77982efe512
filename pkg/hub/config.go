package hub

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultSampleInterval is the sampling period after boot.
	DefaultSampleInterval = 1000 * time.Millisecond
	// MinSampleInterval is the smallest period accepted by SET_RATE.
	MinSampleInterval = 100 * time.Millisecond
	// MaxSampleInterval is the longest period SET_RATE stores; larger values
	// saturate. It is the range of a 32-bit millisecond counter.
	MaxSampleInterval = math.MaxUint32 * time.Millisecond
	// DefaultHeartbeatPeriod is the heartbeat period.
	DefaultHeartbeatPeriod = 5000 * time.Millisecond
	// DefaultCommandBufferSize bounds a command line in bytes.
	DefaultCommandBufferSize = 120
	// DefaultEchoTimeout bounds an ultrasonic echo measurement.
	DefaultEchoTimeout = 30 * time.Millisecond
	// DefaultBootMessage is logged first after a (re)start.
	DefaultBootMessage = "Booting Sensor Hub..."
	// DefaultDHTModel is reported in the inventory for DHT channels.
	DefaultDHTModel = "DHT22"

	// SeaLevelPressure is the reference used to derive altitude, in hPa.
	SeaLevelPressure = 1013.25

	dhtSettle     = 100 * time.Millisecond
	oneWireSettle = 50 * time.Millisecond
	resetDelay    = 100 * time.Millisecond
	triggerIdle   = 2 * time.Microsecond
	triggerPulse  = 10 * time.Microsecond
)

// DefaultBarometerAddresses are the two BMP280 I2C addresses.
var DefaultBarometerAddresses = []uint16{0x76, 0x77}

var (
	ErrUnknownKind    = errors.New("unknown channel kind")
	ErrDuplicateName  = errors.New("duplicate channel name")
	ErrInvalidConfig  = errors.New("invalid hub configuration")
	ErrReset          = errors.New("reset requested")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingValue   = errors.New("missing value")
	ErrIntervalTooLow = errors.New("sample interval too low")
)

// Config is the hub configuration: the channel table plus timing.
type Config struct {
	Channels          []ChannelSpec
	SampleInterval    time.Duration
	HeartbeatPeriod   time.Duration
	CommandBufferSize int
	EchoTimeout       time.Duration
	BootMessage       string
	// IdleDelay is slept between loop iterations by Run. Zero spins.
	IdleDelay time.Duration
}

// ReferenceChannels is the wiring of the reference board: DHT22 on D2,
// DS18B20 on D3, HC-SR04 on D4/D5, PIR on D6, BMP280 on I2C and four analog
// inputs A0..A3 (pins 14..17).
func ReferenceChannels() []ChannelSpec {
	return []ChannelSpec{
		{Kind: KindHumidityTemperature, Pin: 2, Model: DefaultDHTModel},
		{Kind: KindOneWireTemperature, Pin: 3},
		{Kind: KindPressure, Bus: "i2c0", Addresses: []uint16{0x76, 0x77}},
		{Kind: KindDistance, Trigger: 4, Echo: 5},
		{Kind: KindMotion, Pin: 6},
		{Kind: KindAnalog, Pin: 14},
		{Kind: KindAnalog, Pin: 15},
		{Kind: KindAnalog, Pin: 16},
		{Kind: KindAnalog, Pin: 17},
	}
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Channels:          ReferenceChannels(),
		SampleInterval:    DefaultSampleInterval,
		HeartbeatPeriod:   DefaultHeartbeatPeriod,
		CommandBufferSize: DefaultCommandBufferSize,
		EchoTimeout:       DefaultEchoTimeout,
		BootMessage:       DefaultBootMessage,
		IdleDelay:         time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	if c.SampleInterval == 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if c.CommandBufferSize == 0 {
		c.CommandBufferSize = DefaultCommandBufferSize
	}
	if c.EchoTimeout == 0 {
		c.EchoTimeout = DefaultEchoTimeout
	}
	if c.BootMessage == "" {
		c.BootMessage = DefaultBootMessage
	}
	return c
}

// Validate checks timing bounds and channel name uniqueness.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.SampleInterval < MinSampleInterval {
		return fmt.Errorf("%w: sample interval %v below %v", ErrInvalidConfig, c.SampleInterval, MinSampleInterval)
	}
	if c.HeartbeatPeriod < 0 || c.CommandBufferSize < 0 || c.EchoTimeout < 0 || c.IdleDelay < 0 {
		return fmt.Errorf("%w: negative timing or size", ErrInvalidConfig)
	}

	// Analog channels share one inventory entry per name; every other
	// channel needs a name of its own.
	kinds := make(map[string]Kind, len(c.Channels))
	for _, spec := range c.Channels {
		if spec.Kind < KindHumidityTemperature || spec.Kind > KindAnalog {
			return fmt.Errorf("%w: %d", ErrUnknownKind, int(spec.Kind))
		}
		spec = spec.withDefaults()
		prev, seen := kinds[spec.Name]
		if seen && (prev != KindAnalog || spec.Kind != KindAnalog) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
		}
		kinds[spec.Name] = spec.Kind
	}
	return nil
}
