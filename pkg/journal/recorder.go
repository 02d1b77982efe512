package journal

import (
	"log/slog"
	"time"

	"github.com/itohio/gosensorhub/pkg/protocol"
	"github.com/itohio/gosensorhub/pkg/sample"
)

// Event types recorded next to the ones reported by the link supervisor.
const (
	EventHub    = "HUB"
	EventSensor = "SENSOR"
	EventAlert  = "ALERT"
	EventSystem = "SYSTEM"
)

// Recorder appends hub traffic to a journal. Write errors are logged, not
// returned, so a full disk does not stop the readings.
type Recorder struct {
	j        *Journal
	readings bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder records hub messages and, when readings is set, every sample.
func NewRecorder(j *Journal, readings bool, logger *slog.Logger) *Recorder {
	return &Recorder{j: j, readings: readings, logger: logger, now: time.Now}
}

// Observe records one processed update. Hub LOG and ERROR messages become
// events.
func (r *Recorder) Observe(u sample.Update) {
	f := u.Frame
	switch f.Type {
	case protocol.TypeLog:
		r.append(Event(f.Received, EventHub, "INFO", f.Text))
	case protocol.TypeError:
		r.append(Event(f.Received, EventHub, "ERROR", f.Text))
	}
	if !r.readings {
		return
	}
	for _, s := range u.Samples {
		r.append(Reading(s))
	}
}

// Event records an event now and flushes it to disk.
func (r *Recorder) Event(eventType, severity, message string) {
	r.append(Event(r.now(), eventType, severity, message))
	if err := r.j.Flush(); err != nil {
		r.logger.Error("failed to flush journal", "error", err)
	}
}

func (r *Recorder) append(e Entry) {
	if _, err := r.j.Append(e); err != nil {
		r.logger.Error("failed to append to journal", "kind", e.Kind, "error", err)
	}
}
