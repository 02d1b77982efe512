package hub

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/protocol"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "interval below minimum",
			mutate:  func(c *Config) { c.SampleInterval = 50 * time.Millisecond },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative heartbeat",
			mutate:  func(c *Config) { c.HeartbeatPeriod = -time.Second },
			wantErr: ErrInvalidConfig,
		},
		{
			name: "duplicate name",
			mutate: func(c *Config) {
				c.Channels = append(c.Channels, ChannelSpec{Kind: KindMotion, Pin: 7})
			},
			wantErr: ErrDuplicateName,
		},
		{
			name: "unknown kind",
			mutate: func(c *Config) {
				c.Channels = append(c.Channels, ChannelSpec{Kind: Kind(42), Name: "X"})
			},
			wantErr: ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, fullBoard(), &fakeClock{}, &fakeTransport{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_OrdersChannelsByKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = []ChannelSpec{
		{Kind: KindAnalog, Pin: 14},
		{Kind: KindMotion, Pin: 6},
		{Kind: KindHumidityTemperature, Pin: 2},
	}
	h, err := New(cfg, fullBoard(), &fakeClock{}, &fakeTransport{})
	require.NoError(t, err)

	var names []string
	for _, ch := range h.Channels() {
		names = append(names, ch.Name)
		assert.False(t, ch.Present, "nothing is present before boot")
	}
	assert.Equal(t, []string{"DHT", "PIR", "ANALOG"}, names)
}

func TestBoot_DistanceSensorOnly(t *testing.T) {
	h, _, tr := newTestHub(t, distanceBoard())
	h.Boot()

	msgs := tr.messages(t)
	require.Equal(t, []protocol.Type{protocol.TypeLog, protocol.TypeInventory, protocol.TypeHeartbeat}, types(msgs))

	assert.Equal(t, "Booting Sensor Hub...", msgs[0].Text)

	require.Len(t, msgs[1].Sensors, 1)
	sensor := msgs[1].Sensors[0]
	assert.Equal(t, "HC_SR04", sensor.Name)
	pins, ok := sensor.Attr("pins")
	assert.True(t, ok)
	assert.Equal(t, "TRIG:D4,ECHO:D5", pins)

	assert.Equal(t, int64(1000), msgs[2].IntervalMS)
	assert.Equal(t, protocol.ModeStreaming, msgs[2].Mode)

	assert.Equal(t, 1, h.Registry().Count())
}

func TestBoot_ReferenceBoard(t *testing.T) {
	board := fullBoard()
	h, _, tr := newTestHub(t, board)
	h.Boot()

	msgs := tr.messages(t)
	require.Len(t, msgs, 3)
	inv := msgs[1]

	var names []string
	for _, s := range inv.Sensors {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"DHT", "DS18B20", "BMP280", "HC_SR04", "PIR", "ANALOG"}, names)

	dht, _ := inv.SensorInfo("DHT")
	model, _ := dht.Attr("model")
	assert.Equal(t, "DHT22", model)

	ow, _ := inv.SensorInfo("DS18B20")
	bus, _ := ow.Attr("bus")
	assert.Equal(t, "OneWire", bus)

	bmp, _ := inv.SensorInfo("BMP280")
	bus, _ = bmp.Attr("bus")
	assert.Equal(t, "I2C", bus)

	pir, _ := inv.SensorInfo("PIR")
	pin, _ := pir.Attr("pin")
	assert.Equal(t, "6", pin)

	an, _ := inv.SensorInfo("ANALOG")
	assert.Equal(t, []string{"14", "15"}, an.Channels, "zero-reading analog pins are absent")

	assert.True(t, board.dht.begun)
	assert.Equal(t, []uint16{0x76, 0x77}, board.baro.tried)
	assert.Equal(t, 2, board.ow.resets, "search cursor is reset before and after detection")
	assert.Equal(t, []bool{false, true, false}, board.trig.edges)
	assert.Equal(t, DefaultEchoTimeout, board.echo.timeout)
}

func TestBoot_RunsOnce(t *testing.T) {
	board := fullBoard()
	h, _, tr := newTestHub(t, board)
	h.Boot()
	tr.messages(t)

	board.motion.err = errors.New("gone")
	h.Boot()

	assert.Empty(t, tr.messages(t))
	assert.True(t, h.Channels()[4].Present, "registry is fixed at boot")
}

func TestBoot_DriverErrorLeavesChannelAbsent(t *testing.T) {
	board := fullBoard()
	board.baro = nil
	h, _, tr := newTestHub(t, board)
	h.Boot()

	inv := tr.messages(t)[1]
	_, ok := inv.SensorInfo("BMP280")
	assert.False(t, ok)
	assert.Equal(t, 5, len(inv.Sensors))
}

func TestBoot_TimestampsInitialized(t *testing.T) {
	h, clk, _ := newTestHub(t, fullBoard())
	clk.advance(3 * time.Second)
	h.Boot()

	st := h.State()
	assert.Equal(t, clk.now, st.LastSample)
	assert.Equal(t, clk.now, st.LastHeartbeat)
	assert.True(t, st.Streaming)
	assert.Equal(t, DefaultSampleInterval, st.SampleInterval)
}

func TestSample_OneDataMessagePerPresentChannel(t *testing.T) {
	h, _, tr := bootedHub(t, fullBoard())
	h.Sample()

	msgs := tr.messages(t)
	require.Len(t, msgs, 7)
	for _, m := range msgs {
		assert.Equal(t, protocol.TypeData, m.Type)
	}

	byName := func(name string) protocol.Message {
		for _, m := range msgs {
			if m.Sensor == name {
				return m
			}
		}
		t.Fatalf("no DATA for %s", name)
		return protocol.Message{}
	}
	number := func(m protocol.Message, key string) float64 {
		v, ok := m.Value(key)
		require.True(t, ok, "%s missing %s", m.Sensor, key)
		return v.Number()
	}

	dht := byName("DHT")
	assert.InDelta(t, 21.5, number(dht, "temperature_c"), 1e-6)
	assert.InDelta(t, 40.0, number(dht, "humidity_pct"), 1e-6)

	assert.InDelta(t, 19.25, number(byName("DS18B20"), "temperature_c"), 1e-6)

	bmp := byName("BMP280")
	assert.InDelta(t, 22.0, number(bmp, "temperature_c"), 1e-6)
	assert.InDelta(t, 101325.0, number(bmp, "pressure_pa"), 1e-3)
	assert.InDelta(t, 0.0, number(bmp, "altitude_m"), 1.0)

	assert.InDelta(t, 17.15, number(byName("HC_SR04"), "distance_cm"), 1e-3)

	motion, ok := byName("PIR").Value("motion")
	require.True(t, ok)
	assert.Equal(t, protocol.KindInt, motion.Kind)
	assert.Equal(t, int64(1), motion.Int)

	var raws []int64
	for _, m := range filter(msgs, protocol.TypeData) {
		if m.Sensor != "ANALOG" {
			continue
		}
		raw, _ := m.Value("raw")
		raws = append(raws, raw.Int)
	}
	assert.Equal(t, []int64{512, 1023}, raws)
}

func TestSample_OmitsInvalidReadings(t *testing.T) {
	board := fullBoard()
	h, _, tr := bootedHub(t, board)
	board.dht.hum = float32(math.NaN())
	board.dht.tempErr = errors.New("checksum")
	board.echo.width = 0
	h.Sample()

	msgs := tr.messages(t)
	for _, m := range msgs {
		switch m.Sensor {
		case "DHT":
			assert.Empty(t, m.Values, "DATA is still emitted with an empty mapping")
		case "HC_SR04":
			v, ok := m.Value("distance_cm")
			require.True(t, ok, "distance is always reported")
			assert.Zero(t, v.Number())
		}
	}
}

func TestSample_AbsentChannelsNeverReported(t *testing.T) {
	h, clk, tr := bootedHub(t, distanceBoard())
	for i := 0; i < 10; i++ {
		clk.advance(time.Second)
		require.NoError(t, h.Update())
	}

	for _, m := range filter(tr.messages(t), protocol.TypeData) {
		assert.Equal(t, "HC_SR04", m.Sensor)
	}
}

func TestUpdate_SamplesOnInterval(t *testing.T) {
	h, clk, tr := bootedHub(t, distanceBoard())

	clk.advance(999 * time.Millisecond)
	require.NoError(t, h.Update())
	assert.Empty(t, filter(tr.messages(t), protocol.TypeData))

	clk.advance(time.Millisecond)
	require.NoError(t, h.Update())
	assert.Len(t, filter(tr.messages(t), protocol.TypeData), 1)
}

func TestUpdate_SetRateSpacing(t *testing.T) {
	for _, rate := range []int64{100, 250, 1000, 1234} {
		h, clk, tr := bootedHub(t, distanceBoard())
		tr.send("SET_RATE " + strconv.FormatInt(rate, 10) + "\n")

		var stamps []int64
		for i := 0; i < 1000; i++ {
			require.NoError(t, h.Update())
			for _, m := range filter(tr.messages(t), protocol.TypeData) {
				stamps = append(stamps, m.TS)
			}
			clk.advance(7 * time.Millisecond)
		}

		require.NotEmpty(t, stamps)
		for i := 1; i < len(stamps); i++ {
			assert.GreaterOrEqual(t, stamps[i]-stamps[i-1], rate, "rate %d", rate)
		}
	}
}

func TestUpdate_HeartbeatWhilePaused(t *testing.T) {
	h, clk, tr := bootedHub(t, fullBoard())
	tr.send("STOP\r\n")
	require.NoError(t, h.Update())
	tr.messages(t)

	var beats []protocol.Message
	for i := 0; i < 200; i++ {
		clk.advance(100 * time.Millisecond)
		require.NoError(t, h.Update())
		msgs := tr.messages(t)
		assert.Empty(t, filter(msgs, protocol.TypeData))
		beats = append(beats, filter(msgs, protocol.TypeHeartbeat)...)
	}

	require.Len(t, beats, 4)
	for i, b := range beats {
		assert.Equal(t, protocol.ModePaused, b.Mode)
		if i > 0 {
			assert.GreaterOrEqual(t, b.TS-beats[i-1].TS, DefaultHeartbeatPeriod.Milliseconds())
		}
	}
}

func TestUpdate_ProcessesAllBufferedLines(t *testing.T) {
	h, _, tr := bootedHub(t, fullBoard())
	tr.send("PING\nping\r\n\r\nSTOP")
	require.NoError(t, h.Update())

	msgs := tr.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "PONG", msgs[0].Text)
	assert.Equal(t, "PONG", msgs[1].Text)
	assert.True(t, h.State().Streaming, "STOP has no terminator yet")

	tr.send("\n")
	require.NoError(t, h.Update())
	assert.False(t, h.State().Streaming)
}

func TestUpdate_ResetStopsProcessing(t *testing.T) {
	h, clk, tr := bootedHub(t, fullBoard())
	before := clk.now
	tr.send("RESET\nPING\n")

	err := h.Update()
	assert.ErrorIs(t, err, ErrReset)

	msgs := tr.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeLog, msgs[0].Type)
	assert.Equal(t, "Resetting...", msgs[0].Text)
	assert.GreaterOrEqual(t, clk.now-before, 100*time.Millisecond)
}

func TestRun_ReturnsOnReset(t *testing.T) {
	h, _, tr := newTestHub(t, distanceBoard())
	tr.send("RESET\n")

	err := h.Run(context.Background())
	assert.ErrorIs(t, err, ErrReset)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	h, _, tr := newTestHub(t, distanceBoard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tr.messages(t), 3, "boot sequence still runs")
}

type failingTransport struct{ fakeTransport }

func (*failingTransport) Write([]byte) (int, error) { return 0, errors.New("unplugged") }

func TestHub_WriteErrorsAreNotFatal(t *testing.T) {
	tr := &failingTransport{}
	cfg := DefaultConfig()
	h, err := New(cfg, fullBoard(), &fakeClock{}, tr)
	require.NoError(t, err)

	h.Boot()
	tr.send("PING\n")
	assert.NoError(t, h.Update())
}
