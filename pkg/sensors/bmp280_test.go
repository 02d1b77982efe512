package sensors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/sensors"
	"github.com/itohio/gosensorhub/pkg/sim"
)

func TestBMP280_BeginChecksAddress(t *testing.T) {
	chip := sim.NewBMP280Chip(0x77)
	b := sensors.NewBMP280(chip)

	assert.False(t, b.Begin(0x76))
	assert.True(t, b.Begin(0x77))
	assert.Equal(t, uint16(0x77), b.Address())
}

func TestBMP280_Readings(t *testing.T) {
	chip := sim.NewBMP280Chip(0x76)
	b := sensors.NewBMP280(chip)
	require.True(t, b.Begin(0x76))

	temp, err := b.ReadTemperature()
	require.NoError(t, err)
	assert.InDelta(t, 25.08, temp, 0.05)

	pressure, err := b.ReadPressure()
	require.NoError(t, err)
	assert.InDelta(t, 100653.27, pressure, 2)
}

func TestBMP280_NoDevice(t *testing.T) {
	b := sensors.NewBMP280(sim.NewBMP280Chip(0x42))

	assert.False(t, b.Begin(0x76))
	assert.False(t, b.Begin(0x77))
}
