package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gosensorhub/pkg/link"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createHubTab(state),
		createMonitorTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig writes the configuration back to the file it was loaded from.
func saveConfig(state *appState) bool {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := link.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = port.Description
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.Baud))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			changed := false
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected // Fallback to selected text
				}
				changed = state.cfg.Serial.Port != selectedPort
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				changed = changed || state.cfg.Serial.Baud != baud
				state.cfg.Serial.Baud = baud
			}
			if !saveConfig(state) {
				return
			}

			// Serial link parameters only apply on connect
			if changed && !state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createHubTab creates the hub timing tab. The sample interval is applied to
// a connected hub right away with SET_RATE; the rest takes effect on the
// simulated hub after reconnecting.
func createHubTab(state *appState) *container.TabItem {
	sampleIntervalEntry := widget.NewEntry()
	sampleIntervalEntry.SetText(state.cfg.Hub.SampleInterval.String())

	heartbeatEntry := widget.NewEntry()
	heartbeatEntry.SetText(state.cfg.Hub.HeartbeatPeriod.String())

	bootMessageEntry := widget.NewEntry()
	bootMessageEntry.SetText(state.cfg.Hub.BootMessage)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sample Interval", Widget: sampleIntervalEntry},
			{Text: "Heartbeat Period", Widget: heartbeatEntry},
			{Text: "Boot Message", Widget: bootMessageEntry},
		},
		OnSubmit: func() {
			if si, err := time.ParseDuration(sampleIntervalEntry.Text); err == nil {
				state.cfg.Hub.SampleInterval = si
				handleSetRate(state, si)
			}
			if hb, err := time.ParseDuration(heartbeatEntry.Text); err == nil {
				state.cfg.Hub.HeartbeatPeriod = hb
			}
			if msg := strings.TrimSpace(bootMessageEntry.Text); msg != "" {
				state.cfg.Hub.BootMessage = msg
			}
			if err := state.cfg.Validate(); err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Hub", form)
}

// createMonitorTab creates the reading history tab.
func createMonitorTab(state *appState) *container.TabItem {
	windowSecondsEntry := widget.NewEntry()
	windowSecondsEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Monitor.WindowSeconds))

	averageSamplesEntry := widget.NewEntry()
	averageSamplesEntry.SetText(strconv.Itoa(state.cfg.Monitor.AverageSamples))

	staleAfterEntry := widget.NewEntry()
	staleAfterEntry.SetText(state.cfg.Monitor.StaleAfter.String())

	maxPointsEntry := widget.NewEntry()
	maxPointsEntry.SetText(strconv.Itoa(state.cfg.Monitor.MaxPoints))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds)", Widget: windowSecondsEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageSamplesEntry},
			{Text: "Stale After", Widget: staleAfterEntry},
			{Text: "Max Plot Points", Widget: maxPointsEntry},
		},
		OnSubmit: func() {
			if ws, err := strconv.ParseFloat(windowSecondsEntry.Text, 64); err == nil && ws > 0 {
				state.cfg.Monitor.WindowSeconds = ws
			}
			if avg, err := strconv.Atoi(averageSamplesEntry.Text); err == nil && avg >= 0 {
				state.cfg.Monitor.AverageSamples = avg
			}
			if sa, err := time.ParseDuration(staleAfterEntry.Text); err == nil && sa > 0 {
				state.cfg.Monitor.StaleAfter = sa
			}
			if mp, err := strconv.Atoi(maxPointsEntry.Text); err == nil && mp > 0 {
				state.cfg.Monitor.MaxPoints = mp
			}
			if !saveConfig(state) {
				return
			}

			// Recreate the history with the new window
			wasConnected := state.chain != nil
			disconnect(state)
			resetHistory(state)
			if wasConnected {
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Monitor", form)
}

// createMockTab creates the simulated board tab.
func createMockTab(state *appState) *container.TabItem {
	noiseLevelEntry := widget.NewEntry()
	noiseLevelEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.NoiseLevel))

	temperatureEntry := widget.NewEntry()
	temperatureEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.Temperature))

	humidityEntry := widget.NewEntry()
	humidityEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.Humidity))

	distanceEntry := widget.NewEntry()
	distanceEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.Distance))

	analogEntry := widget.NewEntry()
	analogEntry.SetText(strconv.Itoa(int(state.cfg.Mock.Analog)))

	motionEveryEntry := widget.NewEntry()
	motionEveryEntry.SetText(state.cfg.Mock.MotionEvery.String())

	detachedEntry := widget.NewEntry()
	detachedEntry.SetText(strings.Join(state.cfg.Mock.Detached, ","))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Noise Level", Widget: noiseLevelEntry},
			{Text: "Temperature (°C)", Widget: temperatureEntry},
			{Text: "Humidity (%RH)", Widget: humidityEntry},
			{Text: "Distance (cm)", Widget: distanceEntry},
			{Text: "Analog (raw)", Widget: analogEntry},
			{Text: "Motion Period", Widget: motionEveryEntry},
			{Text: "Detached Kinds", Widget: detachedEntry},
		},
		OnSubmit: func() {
			if nl, err := strconv.ParseFloat(noiseLevelEntry.Text, 64); err == nil {
				state.cfg.Mock.NoiseLevel = nl
			}
			if t, err := strconv.ParseFloat(temperatureEntry.Text, 64); err == nil {
				state.cfg.Mock.Temperature = t
			}
			if h, err := strconv.ParseFloat(humidityEntry.Text, 64); err == nil {
				state.cfg.Mock.Humidity = h
			}
			if d, err := strconv.ParseFloat(distanceEntry.Text, 64); err == nil {
				state.cfg.Mock.Distance = d
			}
			if a, err := strconv.ParseUint(analogEntry.Text, 10, 16); err == nil {
				state.cfg.Mock.Analog = uint16(a)
			}
			if me, err := time.ParseDuration(motionEveryEntry.Text); err == nil {
				state.cfg.Mock.MotionEvery = me
			}
			state.cfg.Mock.Detached = splitList(detachedEntry.Text)
			if !saveConfig(state) {
				return
			}

			// The simulated board is built on connect
			if state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	var items []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
