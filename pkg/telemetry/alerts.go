package telemetry

import (
	"log/slog"
	"time"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/sample"
)

// AlertKind tells which bound was crossed.
type AlertKind string

const (
	AlertLow  AlertKind = "low"
	AlertHigh AlertKind = "high"
)

// Alert is a reading outside its configured bounds.
type Alert struct {
	Series    sample.Series
	Kind      AlertKind
	Value     float64
	Threshold float64
	Timestamp time.Time
}

// Alerts evaluates samples against the configured thresholds.
type Alerts struct {
	rules  map[sample.Series][]config.AlertConfig
	logger *slog.Logger
}

// NewAlerts creates an evaluator. A nil logger uses slog.Default().
func NewAlerts(rules []config.AlertConfig, logger *slog.Logger) *Alerts {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Alerts{
		rules:  make(map[sample.Series][]config.AlertConfig, len(rules)),
		logger: logger,
	}
	for _, r := range rules {
		s := sample.Series{Sensor: r.Sensor, Field: r.Field}
		a.rules[s] = append(a.rules[s], r)
	}
	return a
}

// Check returns the alerts raised by a single sample.
func (a *Alerts) Check(s sample.Sample) []Alert {
	var alerts []Alert
	for _, r := range a.rules[s.Series] {
		switch {
		case r.Min != nil && s.Value < *r.Min:
			alerts = append(alerts, Alert{Series: s.Series, Kind: AlertLow, Value: s.Value, Threshold: *r.Min, Timestamp: s.Timestamp})
		case r.Max != nil && s.Value > *r.Max:
			alerts = append(alerts, Alert{Series: s.Series, Kind: AlertHigh, Value: s.Value, Threshold: *r.Max, Timestamp: s.Timestamp})
		}
	}
	return alerts
}

// Evaluate checks all samples, logs a warning per alert and returns them.
func (a *Alerts) Evaluate(samples []sample.Sample) []Alert {
	var alerts []Alert
	for _, s := range samples {
		for _, al := range a.Check(s) {
			a.logger.Warn("sensor reading out of range",
				"series", al.Series.String(),
				"kind", al.Kind,
				"value", al.Value,
				"threshold", al.Threshold)
			alerts = append(alerts, al)
		}
	}
	return alerts
}
