package sample

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	samples := []Sample{
		{Timestamp: at, HubTS: 1000, Series: Series{Sensor: "DHT", Field: "temperature_c"}, Value: 21.5},
		{Timestamp: at.Add(time.Second), HubTS: 2000, Series: Series{Sensor: "ANALOG[14]", Field: "raw"}, Value: 512},
		{Timestamp: at.Add(time.Second), HubTS: 2000, Series: Series{Sensor: "name, with comma", Field: "x"}, Value: -0.25},
	}

	var b strings.Builder
	require.NoError(t, WriteCSV(&b, samples))

	assert.Equal(t, "timestamp,hub_ts,sensor,field,value\n"+
		"2024-03-01T12:00:00.5Z,1000,DHT,temperature_c,21.5\n"+
		"2024-03-01T12:00:01.5Z,2000,ANALOG[14],raw,512\n"+
		"2024-03-01T12:00:01.5Z,2000,\"name, with comma\",x,-0.25\n", b.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteCSV(&b, nil))
	assert.Equal(t, "timestamp,hub_ts,sensor,field,value\n", b.String())
}
