package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/protocol"
)

type fakeToken struct {
	done   bool
	err    error
	doneCh chan struct{}
}

func newFakeToken(done bool, err error) *fakeToken {
	t := &fakeToken{done: done, err: err, doneCh: make(chan struct{})}
	if done {
		close(t.doneCh)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{}          { return t.doneCh }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	disconnected bool
	timeout      bool
	err          error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p string
	switch v := payload.(type) {
	case string:
		p = v
	case []byte:
		p = string(v)
	}
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: p})
	return newFakeToken(!c.timeout, c.err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func testMQTTConfig() config.MQTTConfig {
	cfg := config.Default().MQTT
	cfg.Broker = "tcp://localhost:1883"
	return cfg
}

func TestMQTTPublisher_Data(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, testMQTTConfig(), nil)

	err := p.Publish(update(protocol.Data(1000, "DHT",
		protocol.FloatValue("temperature_c", 21.5),
		protocol.FloatValue("humidity_pct", 40))))
	require.NoError(t, err)

	assert.Equal(t, []published{
		{topic: "sensorhub/data/DHT/temperature_c", qos: 1, payload: "21.5"},
		{topic: "sensorhub/data/DHT/humidity_pct", qos: 1, payload: "40"},
	}, client.messages)
}

func TestMQTTPublisher_Status(t *testing.T) {
	tests := []struct {
		name    string
		msg     protocol.Message
		topic   string
		payload string
	}{
		{
			name:    "heartbeat",
			msg:     protocol.Heartbeat(5000, 1000, protocol.ModeStreaming),
			topic:   "sensorhub/heartbeat",
			payload: `{"type":"HEARTBEAT","ts":5000,"interval_ms":1000,"mode":"STREAMING"}`,
		},
		{
			name:    "log",
			msg:     protocol.Log(0, "Booting Sensor Hub..."),
			topic:   "sensorhub/log",
			payload: `{"type":"LOG","ts":0,"message":"Booting Sensor Hub..."}`,
		},
		{
			name:    "error",
			msg:     protocol.Error(10, "Unknown command"),
			topic:   "sensorhub/error",
			payload: `{"type":"ERROR","ts":10,"message":"Unknown command"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			p := newMQTTPublisher(client, testMQTTConfig(), nil)

			require.NoError(t, p.Publish(update(tt.msg)))
			require.Len(t, client.messages, 1)
			assert.Equal(t, tt.topic, client.messages[0].topic)
			assert.Equal(t, tt.payload, client.messages[0].payload)
		})
	}
}

func TestMQTTPublisher_Prefix(t *testing.T) {
	client := &fakeClient{}
	cfg := testMQTTConfig()

	cfg.TopicPrefix = "lab/hub1/"
	p := newMQTTPublisher(client, cfg, nil)
	require.NoError(t, p.Publish(update(protocol.Data(0, "PIR", protocol.IntValue("motion", 1)))))

	cfg.TopicPrefix = ""
	p = newMQTTPublisher(client, cfg, nil)
	require.NoError(t, p.Publish(update(protocol.Data(0, "PIR", protocol.IntValue("motion", 0)))))

	require.Len(t, client.messages, 2)
	assert.Equal(t, "lab/hub1/data/PIR/motion", client.messages[0].topic)
	assert.Equal(t, "data/PIR/motion", client.messages[1].topic)
}

func TestMQTTPublisher_Errors(t *testing.T) {
	client := &fakeClient{timeout: true}
	p := newMQTTPublisher(client, testMQTTConfig(), nil)
	assert.ErrorIs(t, p.Publish(update(protocol.Log(0, "x"))), ErrPublishTimeout)

	errBroker := errors.New("broker gone")
	client = &fakeClient{err: errBroker}
	p = newMQTTPublisher(client, testMQTTConfig(), nil)
	err := p.Publish(update(protocol.Data(0, "DHT",
		protocol.FloatValue("temperature_c", 1),
		protocol.FloatValue("humidity_pct", 2))))
	assert.ErrorIs(t, err, errBroker)
	assert.Len(t, client.messages, 2, "every reading is attempted")

	// Observe only logs
	p.Observe(update(protocol.Log(0, "x")), history.Status{})
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, testMQTTConfig(), nil)

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestNewMQTTPublisher_EmptyBroker(t *testing.T) {
	_, err := NewMQTTPublisher(config.Default().MQTT, nil)
	assert.ErrorIs(t, err, ErrEmptyBroker)
}
