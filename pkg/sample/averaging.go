package sample

import (
	"log/slog"
	"time"
)

// NewAveragingConverter creates a converter that replaces every sample with
// the mean of the last windowSize samples of the same series. This reduces
// noise in the measurements.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Update) <-chan Update {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Update) <-chan Update {
		out := make(chan Update, bufSize)

		go func() {
			defer close(out)

			windows := make(map[Series]*window)
			for u := range in {
				if len(u.Samples) > 0 {
					averaged := make([]Sample, len(u.Samples))
					for i, s := range u.Samples {
						w, ok := windows[s.Series]
						if !ok {
							w = newWindow(windowSize)
							windows[s.Series] = w
						}
						s.Value = w.add(s.Value)
						averaged[i] = s
					}
					u.Samples = averaged
				}

				select {
				case out <- u:
				case <-time.After(time.Second):
					slog.Warn("averaging converter output channel full, dropping update")
				}
			}
		}()

		return out
	}
}

// window is a fixed-size ring of the most recent values with a running sum.
type window struct {
	values []float64
	next   int
	full   bool
	sum    float64
}

func newWindow(size int) *window {
	return &window{values: make([]float64, size)}
}

// add inserts v, evicting the oldest value when full, and returns the mean.
func (w *window) add(v float64) float64 {
	if w.full {
		w.sum -= w.values[w.next]
	}
	w.values[w.next] = v
	w.sum += v
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}

	n := w.next
	if w.full {
		n = len(w.values)
	}
	return w.sum / float64(n)
}
