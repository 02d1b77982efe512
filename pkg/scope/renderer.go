package scope

import (
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/sample"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	boundColor = color.RGBA{R: 220, G: 60, B: 60, A: 255}   // Red
	infoColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255} // Light gray
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	// Background fills entire widget
	r.grid.Resize(size)

	// Size changed, trigger widget refresh to redraw with new dimensions
	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.displaySamples
	series := r.scope.series
	stats := r.scope.stats
	hasData := r.scope.hasData
	bounds := r.scope.bounds
	v := r.scope.view
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	// Clear old objects (but keep grid)
	r.objects = []fyne.CanvasObject{r.grid}

	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(40.0)

	plotWidth := size.Width - marginLeft - marginRight
	plotHeight := size.Height - marginTop - marginBottom
	plotX := marginLeft
	plotY := marginTop

	r.drawGrid(plotX, plotY, plotWidth, plotHeight, v)
	r.drawBounds(plotX, plotY, plotWidth, plotHeight, bounds, v)
	if len(samples) > 1 {
		r.drawTrace(plotX, plotY, plotWidth, plotHeight, samples, v)
	}
	r.drawInfo(plotX, plotY, series, stats, hasData)
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(plotX, plotY, plotWidth, plotHeight float32, v view) {
	// Horizontal grid lines (value)
	numHLines := 8
	for i := range numHLines + 1 {
		y := plotY + float32(i)*plotHeight/float32(numHLines)
		r.addLine(gridColor, 1, fyne.NewPos(plotX, y), fyne.NewPos(plotX+plotWidth, y))

		value := v.yMax - float64(i)*(v.yMax-v.yMin)/float64(numHLines)
		r.addText(formatValue(value), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(plotX-5, y-6))
	}

	// Vertical grid lines (time)
	numVLines := 10
	span := v.xMax.Sub(v.xMin)
	for i := range numVLines + 1 {
		x := plotX + float32(i)*plotWidth/float32(numVLines)
		r.addLine(gridColor, 1, fyne.NewPos(x, plotY), fyne.NewPos(x, plotY+plotHeight))

		offset := span * time.Duration(i) / time.Duration(numVLines)
		r.addText(formatTime(offset), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, plotY+plotHeight+5))
	}
}

// drawBounds draws alert thresholds that fall inside the visible range.
func (r *scopeRenderer) drawBounds(plotX, plotY, plotWidth, plotHeight float32, bounds []float64, v view) {
	for _, b := range bounds {
		if !v.contains(b) {
			continue
		}
		y := v.y(b, plotY, plotHeight)
		r.addLine(boundColor, 1, fyne.NewPos(plotX, y), fyne.NewPos(plotX+plotWidth, y))
	}
}

// drawTrace draws the series curve.
func (r *scopeRenderer) drawTrace(plotX, plotY, plotWidth, plotHeight float32, samples []sample.Sample, v view) {
	prev := fyne.NewPos(v.x(samples[0].Timestamp, plotX, plotWidth), v.y(samples[0].Value, plotY, plotHeight))
	for _, s := range samples[1:] {
		p := fyne.NewPos(v.x(s.Timestamp, plotX, plotWidth), v.y(s.Value, plotY, plotHeight))
		r.addLine(traceColor, 1.5, prev, p)
		prev = p
	}
}

// drawInfo draws the series name and window statistics.
func (r *scopeRenderer) drawInfo(plotX, plotY float32, series sample.Series, stats history.Stats, hasData bool) {
	if series.Sensor == "" {
		r.addText("no series selected", infoColor, 11, fyne.TextAlignLeading, fyne.NewPos(plotX+10, plotY+10))
		return
	}
	text := series.String()
	if hasData {
		text += "  last " + formatValue(stats.Last) +
			"  min " + formatValue(stats.Min) +
			"  max " + formatValue(stats.Max) +
			"  mean " + formatValue(stats.Mean)
	}
	r.addText(text, infoColor, 11, fyne.TextAlignLeading, fyne.NewPos(plotX+10, plotY+10))
}

func (r *scopeRenderer) addLine(c color.Color, width float32, p1, p2 fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = p1
	line.Position2 = p2
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

func (r *scopeRenderer) addText(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	text := canvas.NewText(s, c)
	text.TextSize = size
	text.Alignment = align
	text.Move(pos)
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}
