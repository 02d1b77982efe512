package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gosensorhub/pkg/hub"
	"github.com/itohio/gosensorhub/pkg/protocol"
)

// hubCommands are the one-shot commands offered on the toolbar.
var hubCommands = []struct {
	label   string
	icon    fyne.Resource
	command string
}{
	{"Ping", theme.InfoIcon(), hub.CmdPing},
	{"Inventory", theme.ListIcon(), hub.CmdInventory},
	{"Status", theme.QuestionIcon(), hub.CmdStatus},
	{"Reset", theme.ViewRefreshIcon(), hub.CmdReset},
}

// handleCommand sends cmd to the connected hub.
func handleCommand(state *appState, cmd string) {
	if state.chain == nil || !state.chain.Device().IsConnected() {
		return
	}
	if err := state.chain.Device().Send(cmd); err != nil {
		dialog.ShowError(fmt.Errorf("failed to send %s: %w", cmd, err), state.window)
	}
}

// handleStreamToggle pauses or resumes streaming depending on the mode the
// hub last reported.
func handleStreamToggle(state *appState) {
	state.updateMu.Lock()
	streaming := state.streaming
	state.updateMu.Unlock()

	if streaming {
		handleCommand(state, hub.CmdStop)
	} else {
		handleCommand(state, hub.CmdStart)
	}
}

// handleSetRate asks the hub for a new sampling interval.
func handleSetRate(state *appState, interval time.Duration) {
	handleCommand(state, fmt.Sprintf("%s %d", hub.CmdSetRate, interval.Milliseconds()))
}

// updateStreamingFromFrame tracks the streaming mode from heartbeats and
// command acknowledgements. Only updates UI when the mode actually changes.
// Uses fyne.Do() to ensure thread-safe UI updates from goroutine.
func updateStreamingFromFrame(state *appState, f protocol.Message) {
	var streaming bool
	switch {
	case f.Type == protocol.TypeHeartbeat:
		streaming = f.Mode == protocol.ModeStreaming
	case f.Type == protocol.TypeLog && f.Text == hub.ReplyStreamingEnabled:
		streaming = true
	case f.Type == protocol.TypeLog && f.Text == hub.ReplyStreamingPaused:
		streaming = false
	default:
		return
	}

	state.updateMu.Lock()
	changed := state.streaming != streaming
	state.streaming = streaming
	state.updateMu.Unlock()
	if !changed {
		return
	}

	fyne.Do(func() {
		updateStreamButton(state.streamBtn, streaming)
	})
}

// updateStreamButton shows the action the button will take next.
func updateStreamButton(btn *widget.Button, streaming bool) {
	if streaming {
		btn.SetIcon(theme.MediaPauseIcon())
		btn.Importance = widget.HighImportance
	} else {
		btn.SetIcon(theme.MediaPlayIcon())
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}
