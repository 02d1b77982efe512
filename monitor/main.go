package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/pipeline"
	"github.com/itohio/gosensorhub/pkg/sample"
	"github.com/itohio/gosensorhub/pkg/scope"
)

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use simulated hub instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	// Override average samples if provided via command line
	if *averageSamplesFlag >= 0 {
		cfg.Monitor.AverageSamples = *averageSamplesFlag
	}

	application := app.NewWithID("com.itohio.gosensorhub")

	window := application.NewWindow("Sensor Hub")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
		window:     window,
		useMock:    *mockFlag,
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(cfg)
	state.statusLabel = widget.NewLabel("Disconnected")

	content := container.NewBorder(
		toolbar,
		state.statusLabel,
		nil,
		nil,
		state.scopeWidget,
	)

	resetHistory(state)

	window.SetOnClosed(func() {
		disconnect(state)
	})
	window.SetContent(content)
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	logger      *slog.Logger
	history     *history.History
	scopeWidget *scope.ScopeWidget
	statusLabel *widget.Label
	window      fyne.Window
	useMock     bool
	chain       *pipeline.Chain // Current processing chain (nil if not connected)

	connectBtn   *widget.Button
	streamBtn    *widget.Button
	commandBtns  []*widget.Button
	seriesSelect *widget.Select

	// Selected series and its known alternatives (protected by updateMu)
	updateMu       sync.Mutex
	series         sample.Series
	knownSeries    []sample.Series
	lastUpdateTime time.Time
	streaming      bool
}

// createToolbar creates the toolbar with Connect, Settings, the hub command
// buttons and the series selector.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.streamBtn = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() {
		handleStreamToggle(state)
	})
	state.commandBtns = append(state.commandBtns, state.streamBtn)
	for _, c := range hubCommands {
		btn := widget.NewButtonWithIcon(c.label, c.icon, func() {
			handleCommand(state, c.command)
		})
		state.commandBtns = append(state.commandBtns, btn)
	}
	setCommandsEnabled(state, false)

	state.seriesSelect = widget.NewSelect(nil, func(selected string) {
		selectSeries(state, selected)
	})
	state.seriesSelect.PlaceHolder = "(no readings yet)"

	right := container.NewHBox()
	for _, btn := range state.commandBtns {
		right.Add(btn)
	}

	// Series selector fills the space between the button groups
	return container.NewBorder(nil, nil, container.NewHBox(connectBtn, settingsBtn), right, state.seriesSelect)
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.chain != nil && state.chain.Device().IsConnected() {
		disconnect(state)
		if state.useMock {
			state.logger.Info("disconnected from simulated hub")
		} else {
			state.logger.Info("disconnected from serial port", "port", state.cfg.Serial.Port)
		}
		state.statusLabel.SetText("Disconnected")
		return
	}

	device := pipeline.OpenDevice(state.cfg, state.useMock, state.logger)
	chain, err := pipeline.Start(device, state.history, state.cfg)
	if err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to connect to simulated hub: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}
	state.chain = chain
	setCommandsEnabled(state, true)
	go watchLink(state, chain)

	if state.useMock {
		state.logger.Info("connected to simulated hub")
	} else {
		state.logger.Info("connected to serial port", "port", state.cfg.Serial.Port)
	}
}

// disconnect gracefully closes the processing chain.
func disconnect(state *appState) {
	if state.chain == nil {
		return
	}
	if err := state.chain.Close(); err != nil {
		state.logger.Warn("failed to close device", "error", err)
	}
	state.chain = nil
	setCommandsEnabled(state, false)
}

// watchLink reports a link that dropped under the chain, e.g. an unplugged
// board. Connect opens it again.
func watchLink(state *appState, chain *pipeline.Chain) {
	<-chain.Done()
	fyne.Do(func() {
		if state.chain != chain {
			return
		}
		disconnect(state)
		state.logger.Warn("link lost")
		state.statusLabel.SetText("Link lost")
	})
}

// resetHistory replaces the reading history, e.g. after the window changed.
// The callback must be registered before the chain starts.
func resetHistory(state *appState) {
	h := history.New(state.cfg)
	h.OnUpdate(func(u sample.Update, st history.Status) {
		handleUpdate(state, h, u, st)
	})
	state.history = h
}

// reconnect restarts the chain if it was running, picking up config changes.
func reconnect(state *appState) {
	if state.chain == nil {
		return
	}
	disconnect(state)
	handleConnect(state)
}

func setCommandsEnabled(state *appState, enabled bool) {
	for _, btn := range state.commandBtns {
		if enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
}
