//go:build tinygo

package main

import (
	"machine"
	"time"

	"github.com/itohio/gosensorhub/pkg/hub"
)

const (
	// Timing configuration
	SAMPLE_INTERVAL_MS    = 1000 // Default sampling period, SET_RATE changes it at runtime
	HEARTBEAT_INTERVAL_MS = 5000
	CMD_BUFFER_SIZE       = 120 // Longest accepted command line in bytes
	ECHO_TIMEOUT_US       = 30000
	IDLE_DELAY_US         = 500

	// Sensor pins (Arduino numbering)
	PIN_DHT      = 2
	PIN_ONE_WIRE = 3
	PIN_TRIGGER  = 4
	PIN_ECHO     = 5
	PIN_PIR      = 6

	DHT_MODEL = hub.DefaultDHTModel

	// I2C bus of the BMP280
	BAROMETER_BUS = "i2c0"

	// Serial configuration
	UART_BAUD_RATE = 115200
)

// ANALOG_PINS are A0..A3.
var ANALOG_PINS = []int{14, 15, 16, 17}

// pinMap translates Arduino pin numbers to machine pins.
var pinMap = map[int]machine.Pin{
	2:  machine.D2,
	3:  machine.D3,
	4:  machine.D4,
	5:  machine.D5,
	6:  machine.D6,
	14: machine.ADC0,
	15: machine.ADC1,
	16: machine.ADC2,
	17: machine.ADC3,
}

// hubConfig returns the channel table and timing of this board.
func hubConfig() hub.Config {
	channels := []hub.ChannelSpec{
		{Kind: hub.KindHumidityTemperature, Pin: PIN_DHT, Model: DHT_MODEL},
		{Kind: hub.KindOneWireTemperature, Pin: PIN_ONE_WIRE},
		{Kind: hub.KindPressure, Bus: BAROMETER_BUS, Addresses: hub.DefaultBarometerAddresses},
		{Kind: hub.KindDistance, Trigger: PIN_TRIGGER, Echo: PIN_ECHO},
		{Kind: hub.KindMotion, Pin: PIN_PIR},
	}
	for _, pin := range ANALOG_PINS {
		channels = append(channels, hub.ChannelSpec{Kind: hub.KindAnalog, Pin: pin})
	}

	return hub.Config{
		Channels:          channels,
		SampleInterval:    SAMPLE_INTERVAL_MS * time.Millisecond,
		HeartbeatPeriod:   HEARTBEAT_INTERVAL_MS * time.Millisecond,
		CommandBufferSize: CMD_BUFFER_SIZE,
		EchoTimeout:       ECHO_TIMEOUT_US * time.Microsecond,
		BootMessage:       hub.DefaultBootMessage,
		IdleDelay:         IDLE_DELAY_US * time.Microsecond,
	}
}
