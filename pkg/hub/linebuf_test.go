package hub

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func feed(l *LineBuffer, s string) []string {
	var lines []string
	for i := 0; i < len(s); i++ {
		if line, ok := l.Feed(s[i]); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestLineBuffer_Terminators(t *testing.T) {
	l := NewLineBuffer(0)

	assert.Equal(t, []string{"PING", "STOP", "START"}, feed(l, "PING\nSTOP\r\nSTART\r"))
	assert.Zero(t, l.Len())

	assert.Empty(t, feed(l, "\r\n\n\r"))
	assert.Empty(t, feed(l, "STA"))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"STATUS"}, feed(l, "TUS\n"))
}

func TestLineBuffer_OverflowIsTruncated(t *testing.T) {
	l := NewLineBuffer(DefaultCommandBufferSize)

	long := strings.Repeat("A", 200)
	lines := feed(l, long+"\nPING\n")

	assert.Len(t, lines, 2)
	assert.Len(t, lines[0], DefaultCommandBufferSize)
	assert.Equal(t, "PING", lines[1])
}

func TestLineBuffer_Reset(t *testing.T) {
	l := NewLineBuffer(8)
	feed(l, "GARBAGE")
	l.Reset()
	assert.Equal(t, []string{"PING"}, feed(l, "PING\n"))
}

// pulsePin is high while the clock is inside [from, to).
type pulsePin struct {
	clk      *fakeClock
	from, to time.Duration
}

func (p *pulsePin) Get() bool { return p.clk.now >= p.from && p.clk.now < p.to }

func TestMeasurePulse(t *testing.T) {
	tests := []struct {
		name      string
		from, to  time.Duration
		timeout   time.Duration
		wantOK    bool
		wantWidth time.Duration
	}{
		{name: "complete pulse", from: 100 * time.Microsecond, to: 680 * time.Microsecond, timeout: 30 * time.Millisecond, wantOK: true, wantWidth: 580 * time.Microsecond},
		{name: "no pulse", timeout: 30 * time.Millisecond},
		{name: "pulse in progress is skipped", from: 0, to: 200 * time.Microsecond, timeout: 30 * time.Millisecond},
		{name: "pulse longer than timeout", from: 10 * time.Microsecond, to: 50 * time.Millisecond, timeout: 30 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fakeClock{step: time.Microsecond}
			pin := &pulsePin{clk: clk, from: tt.from, to: tt.to}

			width, ok := MeasurePulse(pin, clk, true, tt.timeout)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.wantWidth.Microseconds(), width.Microseconds(), 2)
			} else {
				assert.Zero(t, width)
				assert.LessOrEqual(t, clk.now, tt.timeout+2*time.Microsecond, "bounded by timeout")
			}
		})
	}
}

func TestDistanceCM(t *testing.T) {
	assert.InDelta(t, 10.0, DistanceCM(583*time.Microsecond), 0.01)
	assert.Zero(t, DistanceCM(0))
}

func TestAltitude(t *testing.T) {
	assert.InDelta(t, 0.0, Altitude(101325, SeaLevelPressure), 0.01)
	assert.InDelta(t, 110.9, Altitude(100000, SeaLevelPressure), 0.5)
}
