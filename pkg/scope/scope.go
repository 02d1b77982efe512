package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/sample"
)

// ScopeWidget is a custom Fyne widget that plots the recent history of one series.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.Config

	// Data (protected by mu)
	mu      sync.RWMutex
	series  sample.Series
	stats   history.Stats
	hasData bool
	bounds  []float64 // alert thresholds of the series

	// Display buffer (reused for downsampling)
	displaySamples []sample.Sample

	// Auto-scaling
	view view

	// Display settings
	maxDisplayPoints int
	window           time.Duration
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		cfg:              cfg,
		displaySamples:   make([]sample.Sample, 0, cfg.Monitor.MaxPoints),
		maxDisplayPoints: cfg.Monitor.MaxPoints,
		window:           time.Duration(cfg.Monitor.WindowSeconds * float64(time.Second)),
	}
	s.view = autoScale(nil, s.window, time.Now())
	s.ExtendBaseWidget(s)
	// Trigger initial refresh to display empty scope
	s.Refresh()
	return s
}

// Series returns the series currently displayed.
func (s *ScopeWidget) Series() sample.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series
}

// UpdateData replaces the plotted series and its samples.
// This should be called from the history callback using fyne.Do().
func (s *ScopeWidget) UpdateData(series sample.Series, samples []sample.Sample, stats history.Stats, ok bool) {
	s.mu.Lock()

	if series != s.series {
		s.bounds = alertBounds(s.cfg.Alerts, series)
	}
	s.series = series
	s.stats = stats
	s.hasData = ok

	// Downsample for display (reuse buffer)
	s.displaySamples = sample.Downsample(s.displaySamples, samples, s.maxDisplayPoints)
	s.view = autoScale(s.displaySamples, s.window, time.Now())

	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// alertBounds collects the thresholds configured for a series.
func alertBounds(alerts []config.AlertConfig, series sample.Series) []float64 {
	var bounds []float64
	for _, a := range alerts {
		if a.Sensor != series.Sensor || a.Field != series.Field {
			continue
		}
		if a.Min != nil {
			bounds = append(bounds, *a.Min)
		}
		if a.Max != nil {
			bounds = append(bounds, *a.Max)
		}
	}
	return bounds
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
