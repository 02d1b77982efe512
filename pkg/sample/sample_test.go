package sample

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/link"
	"github.com/itohio/gosensorhub/pkg/protocol"
)

func frame(m protocol.Message) link.Frame {
	return link.Frame{Received: time.Unix(1700000000, 0), Message: m}
}

func TestFromFrame(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.Message
		want []Sample
	}{
		{
			name: "float fields",
			msg: protocol.Data(1500, "DHT",
				protocol.FloatValue("temperature_c", 21.5),
				protocol.FloatValue("humidity_pct", 40)),
			want: []Sample{
				{HubTS: 1500, Series: Series{"DHT", "temperature_c"}, Value: 21.5},
				{HubTS: 1500, Series: Series{"DHT", "humidity_pct"}, Value: 40},
			},
		},
		{
			name: "integer field",
			msg:  protocol.Data(10, "PIR", protocol.IntValue("motion", 1)),
			want: []Sample{
				{HubTS: 10, Series: Series{"PIR", "motion"}, Value: 1},
			},
		},
		{
			name: "pin becomes part of the series",
			msg:  protocol.Data(20, "ANALOG", protocol.IntValue("pin", 14), protocol.IntValue("raw", 512)),
			want: []Sample{
				{HubTS: 20, Series: Series{"ANALOG[14]", "raw"}, Value: 512},
			},
		},
		{
			name: "invalid values skipped",
			msg:  protocol.Data(30, "BMP280", protocol.FloatValue("pressure_pa", float32(math.NaN()))),
			want: []Sample{},
		},
		{
			name: "non data frames",
			msg:  protocol.Heartbeat(40, 1000, protocol.ModeStreaming),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame(tt.msg)
			for i := range tt.want {
				tt.want[i].Timestamp = f.Received
			}
			assert.Equal(t, tt.want, FromFrame(f))
		})
	}
}

func TestSeries_String(t *testing.T) {
	assert.Equal(t, "HC_SR04/distance_cm", Series{"HC_SR04", "distance_cm"}.String())
}

func TestConverter(t *testing.T) {
	converter := NewConverter(10)
	in := make(chan link.Frame, 10)
	out := converter(in)

	in <- frame(protocol.Log(0, "Booting Sensor Hub..."))
	in <- frame(protocol.Data(1000, "HC_SR04", protocol.FloatValue("distance_cm", 12.5)))
	close(in)

	var updates []Update
	for u := range out {
		updates = append(updates, u)
	}

	require.Len(t, updates, 2)
	assert.Equal(t, protocol.TypeLog, updates[0].Frame.Type)
	assert.Empty(t, updates[0].Samples)
	require.Len(t, updates[1].Samples, 1)
	assert.Equal(t, 12.5, updates[1].Samples[0].Value)
}

// TestConverter_GracefulShutdown tests that converter closes output channel
// when input channel is closed.
func TestConverter_GracefulShutdown(t *testing.T) {
	converter := NewConverter(10)
	input := make(chan link.Frame, 10)
	output := converter(input)

	received := make(chan int, 1)
	go func() {
		count := 0
		for range output {
			count++
		}
		received <- count
	}()

	numFrames := 3
	for i := 0; i < numFrames; i++ {
		input <- frame(protocol.Data(int64(i)*1000, "PIR", protocol.IntValue("motion", 0)))
	}
	close(input)

	select {
	case count := <-received:
		assert.Equal(t, numFrames, count, "Should receive all updates before channel closes")
	case <-time.After(2 * time.Second):
		t.Fatal("Output channel did not close within timeout")
	}
}
