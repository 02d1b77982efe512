package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"fyne.io/fyne/v2"

	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/sample"
)

// Throttle updates to ~30 FPS; readings arrive at most a few times a second
// but bursts follow reconnects.
const updateInterval = 33 * time.Millisecond

// handleUpdate runs on the history goroutine for every received frame. It
// copies what the UI needs and schedules the widget updates with fyne.Do().
func handleUpdate(state *appState, h *history.History, u sample.Update, st history.Status) {
	updateStreamingFromFrame(state, u.Frame.Message)

	state.updateMu.Lock()
	added := false
	for _, s := range u.Samples {
		if !slices.Contains(state.knownSeries, s.Series) {
			state.knownSeries = append(state.knownSeries, s.Series)
			added = true
		}
	}
	if state.series == (sample.Series{}) && len(state.knownSeries) > 0 {
		state.series = state.knownSeries[0]
	}
	series := state.series
	var options []string
	if added {
		options = seriesOptions(state.knownSeries)
	}

	now := time.Now()
	if !added && now.Sub(state.lastUpdateTime) < updateInterval {
		state.updateMu.Unlock()
		return
	}
	state.lastUpdateTime = now
	state.updateMu.Unlock()

	samples := h.Samples(series)
	stats, ok := h.Stats(series)
	status := statusText(st, h.Stale(now), h.StaleSensors(now))

	fyne.Do(func() {
		if options != nil {
			state.seriesSelect.SetOptions(options)
			state.seriesSelect.SetSelected(series.String())
		}
		state.scopeWidget.UpdateData(series, samples, stats, ok)
		state.statusLabel.SetText(status)
	})
}

// selectSeries switches the plotted series. Called on the main thread.
func selectSeries(state *appState, selected string) {
	state.updateMu.Lock()
	idx := slices.IndexFunc(state.knownSeries, func(s sample.Series) bool { return s.String() == selected })
	if idx < 0 || state.knownSeries[idx] == state.series {
		state.updateMu.Unlock()
		return
	}
	series := state.knownSeries[idx]
	state.series = series
	state.updateMu.Unlock()

	stats, ok := state.history.Stats(series)
	state.scopeWidget.UpdateData(series, state.history.Samples(series), stats, ok)
}

// seriesOptions lists series names in the order they were first seen.
func seriesOptions(series []sample.Series) []string {
	options := make([]string, len(series))
	for i, s := range series {
		options[i] = s.String()
	}
	return options
}

// statusText summarizes the hub state for the status bar.
func statusText(st history.Status, stale bool, quiet []history.SensorAge) string {
	var b strings.Builder
	if st.Mode == "" {
		b.WriteString("Waiting for heartbeat")
	} else {
		fmt.Fprintf(&b, "%s @ %d ms", st.Mode, st.IntervalMS)
	}
	fmt.Fprintf(&b, " | %d sensors | %d restarts", len(st.Inventory), st.Restarts)
	if stale {
		b.WriteString(" | NO HEARTBEAT")
	}
	if len(quiet) > 0 {
		names := make([]string, len(quiet))
		for i, q := range quiet {
			names[i] = q.Sensor
		}
		fmt.Fprintf(&b, " | stale: %s", strings.Join(names, ","))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, " | error: %s", st.LastError)
	} else if st.LastLog != "" {
		fmt.Fprintf(&b, " | %s", st.LastLog)
	}
	return b.String()
}
