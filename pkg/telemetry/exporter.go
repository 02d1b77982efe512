package telemetry

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/protocol"
	"github.com/itohio/gosensorhub/pkg/sample"
)

const namespace = "sensorhub"

// Exporter mirrors hub readings and status into prometheus metrics.
type Exporter struct {
	readings     *prometheus.GaugeVec
	messages     *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	interval     prometheus.Gauge
	streaming    prometheus.Gauge
	sensors      prometheus.Gauge
	restarts     prometheus.Gauge
	heartbeatAge prometheus.GaugeFunc

	mu            sync.Mutex
	lastHeartbeat time.Time
	now           func() time.Time
}

// NewExporter creates the hub metrics and registers them with reg.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest reading per sensor field.",
		}, []string{"sensor", "field"}),

		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages received from the hub by type.",
		}, []string{"type"}),

		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Readings outside their configured bounds.",
		}, []string{"sensor", "field", "kind"}),

		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_interval_seconds",
			Help:      "Sample interval reported by the last heartbeat.",
		}),

		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streaming",
			Help:      "1 while the hub streams readings, 0 while paused.",
		}),

		sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_present",
			Help:      "Number of sensors in the last inventory.",
		}),

		restarts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "restarts",
			Help:      "Hub restarts observed since the link was opened.",
		}),

		now: time.Now,
	}

	e.heartbeatAge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_age_seconds",
		Help:      "Time since the last heartbeat, negative before the first one.",
	}, e.age)

	for _, c := range []prometheus.Collector{
		e.readings, e.messages, e.alerts, e.interval,
		e.streaming, e.sensors, e.restarts, e.heartbeatAge,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return e, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Observe records one processed update. It has the history.OnUpdate callback shape.
func (e *Exporter) Observe(u sample.Update, st history.Status) {
	e.messages.WithLabelValues(string(u.Frame.Type)).Inc()

	for _, s := range u.Samples {
		e.readings.WithLabelValues(s.Series.Sensor, s.Series.Field).Set(s.Value)
	}

	switch u.Frame.Type {
	case protocol.TypeHeartbeat:
		e.interval.Set(float64(u.Frame.IntervalMS) / 1000)
		if u.Frame.Mode == protocol.ModeStreaming {
			e.streaming.Set(1)
		} else {
			e.streaming.Set(0)
		}
		e.mu.Lock()
		e.lastHeartbeat = u.Frame.Received
		e.mu.Unlock()
	case protocol.TypeInventory:
		e.sensors.Set(float64(len(u.Frame.Sensors)))
	}

	e.restarts.Set(float64(st.Restarts))
}

// ObserveAlerts counts raised alerts.
func (e *Exporter) ObserveAlerts(alerts []Alert) {
	for _, a := range alerts {
		e.alerts.WithLabelValues(a.Series.Sensor, a.Series.Field, string(a.Kind)).Inc()
	}
}

func (e *Exporter) age() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastHeartbeat.IsZero() {
		return -1
	}
	return e.now().Sub(e.lastHeartbeat).Seconds()
}
