package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/protocol"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name          string
		line          string
		wantErr       error
		wantType      protocol.Type
		wantText      string
		wantStreaming bool
		wantInterval  time.Duration
	}{
		{name: "ping", line: "PING", wantType: protocol.TypeLog, wantText: "PONG", wantStreaming: true, wantInterval: time.Second},
		{name: "lower case and padding", line: "  ping\t", wantType: protocol.TypeLog, wantText: "PONG", wantStreaming: true, wantInterval: time.Second},
		{name: "stop", line: "STOP", wantType: protocol.TypeLog, wantText: "Streaming paused", wantStreaming: false, wantInterval: time.Second},
		{name: "start", line: "start", wantType: protocol.TypeLog, wantText: "Streaming enabled", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate", line: "SET_RATE 250", wantType: protocol.TypeLog, wantText: "Sample rate updated", wantStreaming: true, wantInterval: 250 * time.Millisecond},
		{name: "set rate minimum", line: "set_rate 100", wantType: protocol.TypeLog, wantText: "Sample rate updated", wantStreaming: true, wantInterval: 100 * time.Millisecond},
		{name: "set rate trailing garbage", line: "SET_RATE 300ms", wantType: protocol.TypeLog, wantText: "Sample rate updated", wantStreaming: true, wantInterval: 300 * time.Millisecond},
		{name: "set rate too low", line: "SET_RATE 50", wantErr: ErrIntervalTooLow, wantType: protocol.TypeError, wantText: "SET_RATE too low (min 100 ms)", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate negative", line: "SET_RATE -500", wantErr: ErrIntervalTooLow, wantType: protocol.TypeError, wantText: "SET_RATE too low (min 100 ms)", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate non numeric", line: "SET_RATE fast", wantErr: ErrIntervalTooLow, wantType: protocol.TypeError, wantText: "SET_RATE too low (min 100 ms)", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate missing", line: "SET_RATE", wantErr: ErrMissingValue, wantType: protocol.TypeError, wantText: "SET_RATE requires value", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate prefix match", line: "SET_RATEX 200", wantType: protocol.TypeLog, wantText: "Sample rate updated", wantStreaming: true, wantInterval: 200 * time.Millisecond},
		{name: "set rate tab separator", line: "SET_RATE\t200", wantErr: ErrMissingValue, wantType: protocol.TypeError, wantText: "SET_RATE requires value", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate no separator", line: "SET_RATE200", wantErr: ErrMissingValue, wantType: protocol.TypeError, wantText: "SET_RATE requires value", wantStreaming: true, wantInterval: time.Second},
		{name: "set rate saturates", line: "SET_RATE 10000000000000", wantType: protocol.TypeLog, wantText: "Sample rate updated", wantStreaming: true, wantInterval: MaxSampleInterval},
		{name: "unknown", line: "FOO", wantErr: ErrUnknownCommand, wantType: protocol.TypeError, wantText: "Unknown command", wantStreaming: true, wantInterval: time.Second},
		{name: "argument on plain command", line: "PING now", wantErr: ErrUnknownCommand, wantType: protocol.TypeError, wantText: "Unknown command", wantStreaming: true, wantInterval: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, tr := bootedHub(t, distanceBoard())

			err := h.Execute(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			msgs := tr.messages(t)
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantType, msgs[0].Type)
			assert.Equal(t, tt.wantText, msgs[0].Text)

			st := h.State()
			assert.Equal(t, tt.wantStreaming, st.Streaming)
			assert.Equal(t, tt.wantInterval, st.SampleInterval)
		})
	}
}

func TestExecute_EmptyLineIsSilent(t *testing.T) {
	h, _, tr := bootedHub(t, distanceBoard())

	for _, line := range []string{"", "   ", "\t"} {
		assert.NoError(t, h.Execute(line))
	}
	assert.Empty(t, tr.messages(t))
}

func TestExecute_Inventory(t *testing.T) {
	h, _, tr := bootedHub(t, fullBoard())

	require.NoError(t, h.Execute("INVENTORY"))
	msgs := tr.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeInventory, msgs[0].Type)
	assert.Len(t, msgs[0].Sensors, 6)
}

func TestExecute_StatusYieldsInventoryThenHeartbeat(t *testing.T) {
	h, _, tr := bootedHub(t, distanceBoard())

	for _, paused := range []bool{false, true} {
		if paused {
			require.NoError(t, h.Execute("STOP"))
			tr.messages(t)
		}
		require.NoError(t, h.Execute("STATUS"))

		msgs := tr.messages(t)
		require.Equal(t, []protocol.Type{protocol.TypeInventory, protocol.TypeHeartbeat}, types(msgs))
		if paused {
			assert.Equal(t, protocol.ModePaused, msgs[1].Mode)
		} else {
			assert.Equal(t, protocol.ModeStreaming, msgs[1].Mode)
		}
	}
}

func TestExecute_StopIsIdempotent(t *testing.T) {
	h, clk, tr := bootedHub(t, distanceBoard())

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Execute("STOP"))
		assert.False(t, h.State().Streaming)
	}
	for i := 0; i < 30; i++ {
		clk.advance(500 * time.Millisecond)
		require.NoError(t, h.Update())
	}
	assert.Empty(t, filter(tr.messages(t), protocol.TypeData))

	require.NoError(t, h.Execute("START"))
	clk.advance(time.Second)
	require.NoError(t, h.Update())
	assert.Len(t, filter(tr.messages(t), protocol.TypeData), 1)
}

func TestExecute_TooLowKeepsPriorInterval(t *testing.T) {
	h, _, tr := bootedHub(t, distanceBoard())

	require.NoError(t, h.Execute("SET_RATE 400"))
	assert.ErrorIs(t, h.Execute("SET_RATE 99"), ErrIntervalTooLow)
	assert.Equal(t, 400*time.Millisecond, h.State().SampleInterval)

	require.NoError(t, h.Execute("STATUS"))
	msgs := tr.messages(t)
	hb := msgs[len(msgs)-1]
	assert.Equal(t, int64(400), hb.IntervalMS)
}

func TestExecute_HugeRateKeepsSpacing(t *testing.T) {
	h, clk, tr := bootedHub(t, distanceBoard())

	require.NoError(t, h.Execute("SET_RATE 10000000000000"))
	assert.Equal(t, MaxSampleInterval, h.State().SampleInterval)

	for i := 0; i < 10; i++ {
		clk.advance(10 * time.Millisecond)
		require.NoError(t, h.Update())
	}
	assert.Empty(t, filter(tr.messages(t), protocol.TypeData))

	require.NoError(t, h.Execute("STATUS"))
	msgs := tr.messages(t)
	hb := msgs[len(msgs)-1]
	require.Equal(t, protocol.TypeHeartbeat, hb.Type)
	assert.Equal(t, MaxSampleInterval.Milliseconds(), hb.IntervalMS)
}

func TestExecute_Reset(t *testing.T) {
	h, clk, tr := bootedHub(t, distanceBoard())
	before := clk.now

	err := h.Execute("reset")
	assert.ErrorIs(t, err, ErrReset)
	assert.Equal(t, resetDelay, clk.now-before)

	msgs := tr.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Resetting...", msgs[0].Text)
}

func TestParseLeadingInt(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1000", 1000},
		{"  250", 250},
		{"+42", 42},
		{"-7", -7},
		{"12abc", 12},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"99999999999999999999999", 999999999999999999},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLeadingInt(tt.in))
		})
	}
}
