package telemetry

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/itohio/gosensorhub/pkg/config"
	"github.com/itohio/gosensorhub/pkg/history"
	"github.com/itohio/gosensorhub/pkg/protocol"
	"github.com/itohio/gosensorhub/pkg/sample"
)

var (
	ErrConnect        = errors.New("failed to connect to MQTT broker")
	ErrPublishTimeout = errors.New("failed to publish due to timeout reached")
	ErrEmptyBroker    = errors.New("empty MQTT broker address")
)

// publishClient is the part of mqtt.Client used by MQTTPublisher.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher forwards readings and hub status to an MQTT broker.
//
// Readings go to <prefix>/data/<sensor>/<field> as plain numbers, every
// other message goes to <prefix>/<type> in its wire encoding.
type MQTTPublisher struct {
	client  publishClient
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, ErrEmptyBroker
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, ErrConnect
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client publishClient, cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Publish forwards one update. Errors of individual messages are joined.
func (p *MQTTPublisher) Publish(u sample.Update) error {
	if u.Frame.Type == protocol.TypeData {
		var errs []error
		for _, s := range u.Samples {
			topic := p.topic("data", s.Series.Sensor, s.Series.Field)
			payload := strconv.FormatFloat(s.Value, 'f', -1, 64)
			if err := p.publish(topic, payload); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	payload := bytes.TrimSuffix(protocol.Append(nil, u.Frame.Message), []byte(protocol.Newline))
	return p.publish(p.topic(strings.ToLower(string(u.Frame.Type))), payload)
}

// Observe publishes an update and logs failures. It has the history.OnUpdate
// callback shape.
func (p *MQTTPublisher) Observe(u sample.Update, _ history.Status) {
	if err := p.Publish(u); err != nil {
		p.logger.Warn("failed to publish to MQTT", "type", u.Frame.Type, "error", err)
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(uint(p.timeout / time.Millisecond))
	return nil
}

func (p *MQTTPublisher) topic(parts ...string) string {
	if p.prefix == "" {
		return strings.Join(parts, "/")
	}
	return p.prefix + "/" + strings.Join(parts, "/")
}

func (p *MQTTPublisher) publish(topic string, payload interface{}) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}
