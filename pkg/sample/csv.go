package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"timestamp", "hub_ts", "sensor", "field", "value"}

// CSVWriter writes samples as CSV rows, one sample per row.
type CSVWriter struct {
	w      *csv.Writer
	header bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write appends one row, writing the header first.
func (c *CSVWriter) Write(s Sample) error {
	if !c.header {
		if err := c.w.Write(CSVHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		c.header = true
	}
	return c.w.Write([]string{
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(s.HubTS, 10),
		s.Series.Sensor,
		s.Series.Field,
		strconv.FormatFloat(s.Value, 'f', -1, 64),
	})
}

// Flush writes buffered rows. An empty export still gets its header.
func (c *CSVWriter) Flush() error {
	if !c.header {
		if err := c.w.Write(CSVHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		c.header = true
	}
	c.w.Flush()
	return c.w.Error()
}

// WriteCSV writes samples in the given order.
func WriteCSV(w io.Writer, samples []Sample) error {
	c := NewCSVWriter(w)
	for _, s := range samples {
		if err := c.Write(s); err != nil {
			return err
		}
	}
	return c.Flush()
}
