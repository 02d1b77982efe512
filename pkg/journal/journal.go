// Package journal keeps an append-only log of hub events and readings on
// disk so they survive restarts and can be exported later.
package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itohio/gosensorhub/pkg/sample"
)

const (
	fileName        = "journal.log"
	recordHeaderLen = 12
)

var ErrClosed = errors.New("journal closed")

type EntryID uint64

type Kind string

const (
	KindEvent   Kind = "event"
	KindReading Kind = "reading"
)

// Entry is one journal record. Events fill Type, Severity and Message;
// readings fill Sensor, Field, HubTS and Value.
type Entry struct {
	Time time.Time `json:"time"`
	Kind Kind      `json:"kind"`

	Type     string `json:"type,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`

	Sensor string  `json:"sensor,omitempty"`
	Field  string  `json:"field,omitempty"`
	HubTS  int64   `json:"hub_ts,omitempty"`
	Value  float64 `json:"value,omitempty"`
}

// Event returns an event entry.
func Event(at time.Time, eventType, severity, message string) Entry {
	return Entry{Time: at, Kind: KindEvent, Type: eventType, Severity: severity, Message: message}
}

// Reading returns a reading entry.
func Reading(s sample.Sample) Entry {
	return Entry{
		Time:   s.Timestamp,
		Kind:   KindReading,
		Sensor: s.Series.Sensor,
		Field:  s.Series.Field,
		HubTS:  s.HubTS,
		Value:  s.Value,
	}
}

// Sample converts a reading entry back into a sample.
func (e Entry) Sample() sample.Sample {
	return sample.Sample{
		Timestamp: e.Time,
		HubTS:     e.HubTS,
		Series:    sample.Series{Sensor: e.Sensor, Field: e.Field},
		Value:     e.Value,
	}
}

type Stats struct {
	Latest    EntryID
	SizeBytes int64
}

// Journal is a file of records laid out as
// [8 bytes id][4 bytes length][length bytes json]. Appends are buffered
// until Flush, Iterate, Cleanup or Close.
type Journal struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	nextID    EntryID
	sizeBytes int64
}

// Open opens or creates the journal in dir. A partial record left by a crash
// is cut off.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	j := &Journal{path: filepath.Join(dir, fileName)}
	if err := j.openFile(); err != nil {
		return nil, err
	}
	if err := j.scanExisting(); err != nil {
		j.file.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) openFile() error {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 64<<10)
	return nil
}

func (j *Journal) scanExisting() error {
	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	var (
		offset int64
		lastID EntryID
	)
	err = readRecords(bufio.NewReader(rf), func(id EntryID, body []byte) error {
		offset += recordHeaderLen + int64(len(body))
		lastID = id
		return nil
	})
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("journal scan: %w", err)
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	j.nextID = lastID
	return nil
}

// readRecords calls fn for every complete record. A partial trailing record
// is reported as io.ErrUnexpectedEOF.
func readRecords(r io.Reader, fn func(id EntryID, body []byte) error) error {
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		id := EntryID(binary.BigEndian.Uint64(hdr[0:8]))
		body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if err := fn(id, body); err != nil {
			return err
		}
	}
}

func writeRecord(w io.Writer, id EntryID, body []byte) (int, error) {
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))

	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(body); err != nil {
		return 0, err
	}
	return len(hdr) + len(body), nil
}

// Append buffers one entry and returns its id.
func (j *Journal) Append(e Entry) (EntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return 0, ErrClosed
	}

	b, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	id := j.nextID + 1
	n, err := writeRecord(j.writer, id, b)
	if err != nil {
		return 0, err
	}
	j.nextID = id
	j.sizeBytes += int64(n)
	return id, nil
}

// Flush writes buffered entries to the file.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	return j.writer.Flush()
}

// Iterate calls fn for every entry with an id of at least from, oldest first.
func (j *Journal) Iterate(from EntryID, fn func(id EntryID, e Entry) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return ErrClosed
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = readRecords(bufio.NewReader(f), func(id EntryID, body []byte) error {
		if id < from {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		return fn(id, e)
	})
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("corrupt journal: %w", err)
	}
	return err
}

// Cleanup drops entries older than before by rewriting the file, keeping
// the ids of the rest. It returns the number of entries dropped.
func (j *Journal) Cleanup(before time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return 0, ErrClosed
	}
	if err := j.writer.Flush(); err != nil {
		return 0, err
	}

	src, err := os.Open(j.path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmpPath := j.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	var (
		dropped int
		size    int64
	)
	err = readRecords(bufio.NewReader(src), func(id EntryID, body []byte) error {
		var e Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if e.Time.Before(before) {
			dropped++
			return nil
		}
		n, err := writeRecord(w, id, body)
		size += int64(n)
		return err
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("journal cleanup: %w", err)
	}
	if dropped == 0 {
		return 0, nil
	}

	if err := j.file.Close(); err != nil {
		return 0, err
	}
	j.file = nil
	if err := os.Rename(tmpPath, j.path); err != nil {
		return 0, err
	}
	if err := j.openFile(); err != nil {
		return 0, err
	}
	j.sizeBytes = size
	return dropped, nil
}

// ExportCSV writes the readings taken at or after since as CSV.
func (j *Journal) ExportCSV(w io.Writer, since time.Time) (int, error) {
	c := sample.NewCSVWriter(w)
	n := 0
	err := j.Iterate(0, func(_ EntryID, e Entry) error {
		if e.Kind != KindReading || e.Time.Before(since) {
			return nil
		}
		n++
		return c.Write(e.Sample())
	})
	if err != nil {
		return n, err
	}
	return n, c.Flush()
}

func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Stats{Latest: j.nextID, SizeBytes: j.sizeBytes}
}

// Close flushes and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.writer.Flush()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file = nil
	return err
}
