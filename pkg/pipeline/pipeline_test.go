package pipeline

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/link"
	"github.com/itohio/gosensorhub/pkg/protocol"
	"github.com/itohio/gosensorhub/pkg/sample"
)

var discard = slog.New(slog.DiscardHandler)

func TestOpenDevice(t *testing.T) {
	cfg := config.Default()

	assert.IsType(t, &link.Mock{}, OpenDevice(cfg, true, discard))
	assert.IsType(t, &link.Serial{}, OpenDevice(cfg, false, discard))
}

func TestStart_NilDevice(t *testing.T) {
	_, err := Start(nil, history.New(config.Default()), config.Default())
	assert.ErrorIs(t, err, ErrNilDevice)
}

type failingDevice struct{ link.Device }

var errBoom = errors.New("boom")

func (failingDevice) Connect() error { return errBoom }

func TestStart_ConnectError(t *testing.T) {
	_, err := Start(failingDevice{}, history.New(config.Default()), config.Default())
	assert.ErrorIs(t, err, errBoom)
}

func TestChain_Mock(t *testing.T) {
	cfg := config.Default()
	cfg.Hub.SampleInterval = 100 * time.Millisecond
	cfg.Monitor.AverageSamples = 2

	h := history.New(cfg)
	chain, err := Start(OpenDevice(cfg, true, discard), h, cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := h.Status()
		return len(st.Inventory) > 0 && st.Mode == protocol.ModeStreaming
	}, 5*time.Second, 10*time.Millisecond, "boot sequence reaches the history")

	distance := sample.Series{Sensor: "HC_SR04", Field: "distance_cm"}
	require.Eventually(t, func() bool {
		return len(h.Samples(distance)) >= 2
	}, 5*time.Second, 10*time.Millisecond, "readings reach the history")

	require.NoError(t, chain.Device().Send("STOP"))
	require.Eventually(t, func() bool {
		return h.Status().LastLog == "Streaming paused"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, chain.Close())
	select {
	case <-chain.Done():
	default:
		t.Fatal("chain not drained after Close")
	}
	assert.False(t, chain.Device().IsConnected())
}

func TestChain_CloseNil(t *testing.T) {
	var c *Chain
	assert.NoError(t, c.Close())
}
