// Command hubctl connects to a sensor hub, keeps a history of its readings,
// exports them as prometheus metrics and forwards them to MQTT. It reconnects
// when the link drops and can journal events and readings to disk. Lines
// typed on stdin are sent to the hub as commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/journal"
	"github.com/itohio/gosensorhub/pkg/link"
	"github.com/itohio/gosensorhub/pkg/pipeline"
	"github.com/itohio/gosensorhub/pkg/protocol"
	"github.com/itohio/gosensorhub/pkg/sample"
	"github.com/itohio/gosensorhub/pkg/telemetry"
)

const journalFlushPeriod = 5 * time.Second

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use simulated hub instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
		metricsAddrFlag    = flag.String("metrics-addr", "", "Metrics listen address override (e.g., :9100)")
		logLevelFlag       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevelFlag)); err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevelFlag, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *averageSamplesFlag >= 0 {
		cfg.Monitor.AverageSamples = *averageSamplesFlag
	}
	if *metricsAddrFlag != "" {
		cfg.Metrics.Addr = *metricsAddrFlag
	}

	if err := run(cfg, *mockFlag, logger); err != nil {
		logger.Error("hubctl stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, mock bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := history.New(cfg)

	reg := prometheus.NewRegistry()
	exporter, err := telemetry.NewExporter(reg)
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}
	alerts := telemetry.NewAlerts(cfg.Alerts, logger)

	var publisher *telemetry.MQTTPublisher
	if cfg.MQTT.Broker != "" {
		publisher, err = telemetry.NewMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer publisher.Close()
		logger.Info("forwarding readings to MQTT", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	}

	var (
		j        *journal.Journal
		recorder *journal.Recorder
	)
	if cfg.Journal.Dir != "" {
		j, err = journal.Open(cfg.Journal.Dir)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		recorder = journal.NewRecorder(j, cfg.Journal.Readings, logger)
		recorder.Event(journal.EventSystem, "INFO", "System started")
		defer recorder.Event(journal.EventSystem, "INFO", "System stopped")
		go maintainJournal(ctx, j, cfg.Journal, logger)
		logger.Info("journaling to disk", "dir", cfg.Journal.Dir, "readings", cfg.Journal.Readings)
	}
	event := func(eventType, severity, message string) {
		if recorder != nil {
			recorder.Event(eventType, severity, message)
		}
	}

	// Register consumers before starting the chain
	h.OnUpdate(func(u sample.Update, st history.Status) {
		logFrame(logger, u.Frame)
		exporter.Observe(u, st)
		fired := alerts.Evaluate(u.Samples)
		exporter.ObserveAlerts(fired)
		for _, a := range fired {
			event(journal.EventAlert, "WARNING", fmt.Sprintf("%s %s: %v beyond %v", a.Series, a.Kind, a.Value, a.Threshold))
		}
		if publisher != nil {
			publisher.Observe(u, st)
		}
		if recorder != nil {
			recorder.Observe(u)
		}
	})

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if mock {
		logger.Info("using simulated hub")
	} else {
		logger.Info("using serial port", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)
	}
	sup := pipeline.NewSupervisor(func() link.Device {
		return pipeline.OpenDevice(cfg, mock, logger)
	}, h, cfg, logger)
	sup.OnEvent = event

	go forwardCommands(ctx, os.Stdin, sup, h, j, logger)
	go watchStale(ctx, h, cfg.Monitor, logger, event)

	return sup.Run(ctx)
}

// maintainJournal flushes buffered readings and drops entries past the
// retention period until ctx is done.
func maintainJournal(ctx context.Context, j *journal.Journal, cfg config.JournalConfig, logger *slog.Logger) {
	flush := time.NewTicker(journalFlushPeriod)
	defer flush.Stop()
	cleanup := time.NewTicker(cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			if err := j.Flush(); err != nil {
				logger.Error("failed to flush journal", "error", err)
			}
		case now := <-cleanup.C:
			dropped, err := j.Cleanup(now.Add(-cfg.Retention))
			if err != nil {
				logger.Error("journal cleanup failed", "error", err)
				continue
			}
			if dropped > 0 {
				logger.Info("dropped old journal entries", "count", dropped, "retention", cfg.Retention)
			}
		}
	}
}

// serveMetrics starts the prometheus endpoint in the background.
func serveMetrics(cfg config.MetricsConfig, g prometheus.Gatherer, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, telemetry.Handler(g))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// forwardCommands sends each stdin line to the hub. Lines starting with '!'
// are handled by hubctl:
//
//	!export [file]          write the readings inside the history window as CSV
//	!journal [file] [since] write the journaled readings of the last since (default all) as CSV
func forwardCommands(ctx context.Context, in io.Reader, sup *pipeline.Supervisor, h *history.History, j *journal.Journal, logger *slog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if strings.HasPrefix(cmd, "!") {
			name, err := localCommand(cmd, h, j, time.Now())
			if err != nil {
				logger.Error("command failed", "command", cmd, "error", err)
				continue
			}
			logger.Info("exported readings", "file", name)
			continue
		}
		if err := sup.Send(cmd); err != nil {
			logger.Error("failed to send command", "command", cmd, "error", err)
		}
	}
}

var errNoJournal = errors.New("journal disabled")

// localCommand runs one '!' command and returns the file it wrote.
func localCommand(cmd string, h *history.History, j *journal.Journal, now time.Time) (string, error) {
	args := strings.Fields(cmd)
	name := exportFileName(now)
	if len(args) > 1 {
		name = args[1]
	}

	switch args[0] {
	case "!export":
		return name, writeFile(name, h.ExportCSV)
	case "!journal":
		if j == nil {
			return "", errNoJournal
		}
		var since time.Time
		if len(args) > 2 {
			d, err := time.ParseDuration(args[2])
			if err != nil {
				return "", fmt.Errorf("invalid period: %w", err)
			}
			since = now.Add(-d)
		}
		return name, writeFile(name, func(w io.Writer) error {
			_, err := j.ExportCSV(w, since)
			return err
		})
	default:
		return "", fmt.Errorf("unknown command %s", args[0])
	}
}

func exportFileName(now time.Time) string {
	return "sensorhub_export_" + now.Format("20060102_150405") + ".csv"
}

func writeFile(name string, write func(w io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// watchStale warns once per outage when heartbeats stop or a sensor goes
// quiet, until ctx is done.
func watchStale(ctx context.Context, h *history.History, cfg config.MonitorConfig, logger *slog.Logger, event func(eventType, severity, message string)) {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	ticker := time.NewTicker(staleAfter / 2)
	defer ticker.Stop()

	warned := false
	quiet := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			stale := h.Stale(now)
			if stale && !warned {
				logger.Warn("no heartbeat from hub", "stale_after", staleAfter)
			}
			if !stale && warned {
				logger.Info("hub heartbeat resumed")
			}
			warned = stale

			current := make(map[string]bool)
			for _, s := range h.StaleSensors(now) {
				current[s.Sensor] = true
				if !quiet[s.Sensor] {
					logger.Warn("sensor is stale", "sensor", s.Sensor, "last_seen", s.LastSeen)
					event(journal.EventSensor, "WARNING", fmt.Sprintf("Sensor %s is stale", s.Sensor))
				}
			}
			for name := range quiet {
				if !current[name] {
					logger.Info("sensor reporting again", "sensor", name)
				}
			}
			quiet = current
		}
	}
}

// logFrame reports hub messages that are not readings.
func logFrame(logger *slog.Logger, f link.Frame) {
	switch f.Type {
	case protocol.TypeLog:
		logger.Info("hub", "ts", f.TS, "message", f.Text)
	case protocol.TypeError:
		logger.Warn("hub error", "ts", f.TS, "message", f.Text)
	case protocol.TypeInventory:
		names := make([]string, len(f.Sensors))
		for i, s := range f.Sensors {
			names[i] = s.Name
		}
		logger.Info("hub inventory", "ts", f.TS, "sensors", strings.Join(names, ","))
	case protocol.TypeHeartbeat:
		logger.Debug("hub heartbeat", "ts", f.TS, "mode", f.Mode, "interval_ms", f.IntervalMS)
	case protocol.TypeData:
		logger.Debug("hub data", "ts", f.TS, "sensor", f.Sensor, "values", len(f.Values))
	}
}
