package scope

import (
	"math"
	"strconv"
	"time"

	"github.com/itohio/gosensorhub/pkg/sample"
)

// view is the visible data range of the plot.
type view struct {
	yMin, yMax float64
	xMin, xMax time.Time
}

// autoScale calculates the plot range from the displayed samples. The time
// axis always spans at least window.
func autoScale(samples []sample.Sample, window time.Duration, now time.Time) view {
	if len(samples) == 0 {
		return view{yMin: 0, yMax: 1, xMin: now, xMax: now.Add(window)}
	}

	v := view{yMin: samples[0].Value, yMax: samples[0].Value}
	for _, s := range samples {
		v.yMin = min(v.yMin, s.Value)
		v.yMax = max(v.yMax, s.Value)
	}

	// Add 10% margin
	span := v.yMax - v.yMin
	if span == 0 {
		span = math.Max(math.Abs(v.yMax), 1)
	}
	margin := span * 0.1
	v.yMin -= margin
	v.yMax += margin

	v.xMin = samples[0].Timestamp
	v.xMax = samples[len(samples)-1].Timestamp
	if v.xMax.Sub(v.xMin) < window {
		v.xMax = v.xMin.Add(window)
	}
	return v
}

// x maps a timestamp to a horizontal position inside the plot area.
func (v view) x(t time.Time, plotX, plotWidth float32) float32 {
	span := v.xMax.Sub(v.xMin).Seconds()
	if span <= 0 {
		return plotX
	}
	return plotX + float32(t.Sub(v.xMin).Seconds()/span)*plotWidth
}

// y maps a value to a vertical position inside the plot area.
func (v view) y(value float64, plotY, plotHeight float32) float32 {
	return plotY + plotHeight - float32((value-v.yMin)/(v.yMax-v.yMin))*plotHeight
}

// contains reports whether value is inside the vertical range.
func (v view) contains(value float64) bool {
	return value >= v.yMin && value <= v.yMax
}

// formatValue renders an axis or statistics value with a precision that
// suits its magnitude.
func formatValue(v float64) string {
	a := math.Abs(v)
	switch {
	case a < 1e-9:
		return "0"
	case a >= 10000:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case a >= 100:
		return strconv.FormatFloat(v, 'f', 1, 64)
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}
