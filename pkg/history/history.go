package history

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/protocol"
	"github.com/itohio/gosensorhub/pkg/sample"
)

var _ Monitor = (*History)(nil)

// Status is the host side view of the hub, rebuilt from received frames.
type Status struct {
	Mode          protocol.Mode
	IntervalMS    int64
	HubTS         int64     // latest hub timestamp seen
	LastHeartbeat time.Time // receive time of the latest heartbeat
	Inventory     []protocol.SensorInfo
	LastLog       string
	LastError     string
	Restarts      int // number of times the hub clock went backwards
	Frames        map[protocol.Type]int
}

// Stale reports whether no heartbeat was received within staleAfter of now.
func (s Status) Stale(now time.Time, staleAfter time.Duration) bool {
	if s.LastHeartbeat.IsZero() {
		return true
	}
	return now.Sub(s.LastHeartbeat) > staleAfter
}

// Stats summarizes the samples of one series currently inside the window.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	Last  float64
}

// SensorAge tells when a sensor last reported.
type SensorAge struct {
	Sensor   string
	LastSeen time.Time
}

// Monitor keeps a time window of samples per series and the hub status.
type Monitor interface {
	ProcessUpdates(input <-chan sample.Update)
	Series() []sample.Series                       // Series seen so far, sorted by name
	Samples(s sample.Series) []sample.Sample       // Samples of a series within window (ordered first to last)
	Stats(s sample.Series) (Stats, bool)           // Summary of a series within window
	Status() Status                                // Current hub status
	Stale(now time.Time) bool                      // Heartbeat timeout check
	StaleSensors(now time.Time) []SensorAge        // Sensors silent for longer than the sensor timeout
	OnUpdate(func(u sample.Update, status Status)) // Register callback for updates
}

// History implements Monitor.
// Each series is a FIFO buffer ordered first to last. Removal is based on
// timestamp (time window), not number of samples.
type History struct {
	mu     sync.RWMutex
	series map[sample.Series][]sample.Sample
	status Status
	seen   bool // whether any frame was processed

	// Receive time of the latest DATA per sensor. Sensors announced in an
	// inventory count as seen at the inventory.
	lastSeen map[string]time.Time

	callbacks []func(u sample.Update, status Status)
	cbMu      sync.RWMutex

	windowDuration   time.Duration
	staleAfter       time.Duration
	sensorStaleAfter time.Duration

	// Set to true when input channel closes, prevents further callbacks
	shutdown bool
}

// New creates a new History instance.
func New(cfg *config.Config) *History {
	return &History{
		series:           make(map[sample.Series][]sample.Sample),
		status:           Status{Frames: make(map[protocol.Type]int)},
		lastSeen:         make(map[string]time.Time),
		windowDuration:   time.Duration(cfg.Monitor.WindowSeconds * float64(time.Second)),
		staleAfter:       cfg.Monitor.StaleAfter,
		sensorStaleAfter: cfg.Monitor.SensorStaleAfter,
	}
}

// ProcessUpdates processes updates from the input channel until it closes.
// When the input channel closes, it sets shutdown flag to prevent further callbacks.
func (h *History) ProcessUpdates(input <-chan sample.Update) {
	for u := range input {
		h.processUpdate(u)
	}
	h.mu.Lock()
	h.shutdown = true
	h.mu.Unlock()
}

func (h *History) processUpdate(u sample.Update) {
	h.mu.Lock()

	f := u.Frame
	if h.seen && f.TS < h.status.HubTS {
		h.status.Restarts++
	}
	h.seen = true
	h.status.HubTS = f.TS
	h.status.Frames[f.Type]++

	switch f.Type {
	case protocol.TypeLog:
		h.status.LastLog = f.Text
	case protocol.TypeError:
		h.status.LastError = f.Text
	case protocol.TypeInventory:
		h.status.Inventory = append([]protocol.SensorInfo(nil), f.Sensors...)
		for _, si := range f.Sensors {
			if _, ok := h.lastSeen[si.Name]; !ok {
				h.lastSeen[si.Name] = f.Received
			}
		}
	case protocol.TypeData:
		h.lastSeen[f.Sensor] = f.Received
	case protocol.TypeHeartbeat:
		h.status.Mode = f.Mode
		h.status.IntervalMS = f.IntervalMS
		h.status.LastHeartbeat = f.Received
	}

	for _, s := range u.Samples {
		h.series[s.Series] = h.trim(append(h.series[s.Series], s), s.Timestamp)
	}

	shouldNotify := !h.shutdown
	status := h.statusLocked()
	h.mu.Unlock()

	if shouldNotify {
		h.notifyCallbacks(u, status)
	}
}

// trim drops samples that are outside the window ending at now.
func (h *History) trim(buf []sample.Sample, now time.Time) []sample.Sample {
	if h.windowDuration <= 0 {
		return buf
	}
	cutoff := now.Add(-h.windowDuration)
	i := 0
	for i < len(buf) && !buf[i].Timestamp.After(cutoff) {
		i++
	}
	if i == 0 {
		return buf
	}
	// Copy down so the backing array does not grow forever.
	n := copy(buf, buf[i:])
	return buf[:n]
}

// Series returns the known series sorted by name.
func (h *History) Series() []sample.Series {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]sample.Series, 0, len(h.series))
	for s := range h.series {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Sensor != result[j].Sensor {
			return result[i].Sensor < result[j].Sensor
		}
		return result[i].Field < result[j].Field
	})
	return result
}

// Samples returns a copy of the window of one series.
func (h *History) Samples(s sample.Series) []sample.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := h.series[s]
	result := make([]sample.Sample, len(buf))
	copy(result, buf)
	return result
}

// Stats summarizes the window of one series. It returns false if the series
// has no samples.
func (h *History) Stats(s sample.Series) (Stats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := h.series[s]
	if len(buf) == 0 {
		return Stats{}, false
	}

	st := Stats{Count: len(buf), Min: buf[0].Value, Max: buf[0].Value, Last: buf[len(buf)-1].Value}
	sum := 0.0
	for _, smp := range buf {
		st.Min = min(st.Min, smp.Value)
		st.Max = max(st.Max, smp.Value)
		sum += smp.Value
	}
	st.Mean = sum / float64(len(buf))
	return st, true
}

// Status returns a copy of the current hub status.
func (h *History) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statusLocked()
}

func (h *History) statusLocked() Status {
	st := h.status
	st.Inventory = append([]protocol.SensorInfo(nil), h.status.Inventory...)
	st.Frames = make(map[protocol.Type]int, len(h.status.Frames))
	for k, v := range h.status.Frames {
		st.Frames[k] = v
	}
	return st
}

// Stale reports whether the hub missed its heartbeats for longer than the
// configured timeout.
func (h *History) Stale(now time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status.Stale(now, h.staleAfter)
}

// StaleSensors lists the sensors, sorted by name, whose latest reading is
// older than the configured sensor timeout. A non-positive timeout disables
// the check.
func (h *History) StaleSensors(now time.Time) []SensorAge {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.sensorStaleAfter <= 0 {
		return nil
	}
	var stale []SensorAge
	for name, seen := range h.lastSeen {
		if now.Sub(seen) > h.sensorStaleAfter {
			stale = append(stale, SensorAge{Sensor: name, LastSeen: seen})
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Sensor < stale[j].Sensor })
	return stale
}

// ExportCSV writes every sample inside the window as CSV, ordered by
// receive time.
func (h *History) ExportCSV(w io.Writer) error {
	var all []sample.Sample
	for _, s := range h.Series() {
		all = append(all, h.Samples(s)...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return sample.WriteCSV(w, all)
}

// OnUpdate registers a callback function that will be called for every
// processed update. The callback should return as fast as possible.
func (h *History) OnUpdate(callback func(u sample.Update, status Status)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.callbacks = append(h.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before starting a new processing chain.
func (h *History) ResetShutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdown = false
}

func (h *History) notifyCallbacks(u sample.Update, status Status) {
	h.cbMu.RLock()
	callbacks := make([]func(u sample.Update, status Status), len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(u, status)
		}
	}
}
