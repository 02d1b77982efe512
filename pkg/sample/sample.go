package sample

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/itohio/gosensorhub/pkg/link"
	"github.com/itohio/gosensorhub/pkg/protocol"
)

// Series identifies one numeric quantity reported by the hub, for example
// DHT/temperature_c or ANALOG[14]/raw.
type Series struct {
	Sensor string
	Field  string
}

func (s Series) String() string { return s.Sensor + "/" + s.Field }

// Sample is a single reading of one series.
type Sample struct {
	Timestamp time.Time
	HubTS     int64 // hub milliseconds since boot
	Series    Series
	Value     float64
}

// Update is one received frame together with the samples it carried. Only
// DATA frames carry samples.
type Update struct {
	Frame   link.Frame
	Samples []Sample
}

// Converter is a function type that converts a frame channel to an Update channel.
type Converter func(in <-chan link.Frame) <-chan Update

// NewConverter creates a converter function that splits DATA frames into samples.
func NewConverter(bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan link.Frame) <-chan Update {
		out := make(chan Update, bufSize)

		go func() {
			defer close(out)

			for f := range in {
				u := Update{Frame: f, Samples: FromFrame(f)}

				select {
				case out <- u:
				case <-time.After(time.Second):
					slog.Warn("converter output channel full, dropping update", "type", f.Type)
				}
			}
		}()

		return out
	}
}

// FromFrame converts a DATA frame to samples. A channel that reports its own
// integer "pin" field becomes a series per pin (NAME[pin]) and the pin field
// itself is dropped.
func FromFrame(f link.Frame) []Sample {
	if f.Type != protocol.TypeData {
		return nil
	}

	sensor := f.Sensor
	if pin, ok := f.Value("pin"); ok && pin.Kind == protocol.KindInt {
		sensor += "[" + strconv.FormatInt(pin.Int, 10) + "]"
	}

	samples := make([]Sample, 0, len(f.Values))
	for _, v := range f.Values {
		if v.Key == "pin" || !v.Valid() {
			continue
		}
		samples = append(samples, Sample{
			Timestamp: f.Received,
			HubTS:     f.TS,
			Series:    Series{Sensor: sensor, Field: v.Key},
			Value:     v.Number(),
		})
	}
	return samples
}
