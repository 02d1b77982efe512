package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gosensorhub/pkg/hub"
)

// Config represents the host-side configuration: how to reach the hub, how
// the hub is wired, and what to do with its readings.
type Config struct {
	Serial   SerialConfig    `yaml:"serial"`
	Hub      HubConfig       `yaml:"hub"`
	Channels []ChannelConfig `yaml:"channels"`
	Monitor  MonitorConfig   `yaml:"monitor"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Alerts   []AlertConfig   `yaml:"alerts"`
	Journal  JournalConfig   `yaml:"journal"`
	Mock     MockConfig      `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port                 string        `yaml:"port"`
	Baud                 int           `yaml:"baud"`
	AutoReconnect        bool          `yaml:"auto_reconnect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"` // Negative retries forever
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
}

// HubConfig contains the hub timing parameters.
type HubConfig struct {
	SampleInterval    time.Duration `yaml:"sample_interval"`
	HeartbeatPeriod   time.Duration `yaml:"heartbeat_period"`
	CommandBufferSize int           `yaml:"command_buffer_size"`
	EchoTimeout       time.Duration `yaml:"echo_timeout"`
	BootMessage       string        `yaml:"boot_message"`
}

// ChannelConfig describes one sensor channel. Kind is one of dht, ds18b20,
// bmp280, hcsr04, pir or analog.
type ChannelConfig struct {
	Kind      string   `yaml:"kind"`
	Name      string   `yaml:"name,omitempty"`
	Pin       int      `yaml:"pin,omitempty"`
	Trigger   int      `yaml:"trigger,omitempty"`
	Echo      int      `yaml:"echo,omitempty"`
	Bus       string   `yaml:"bus,omitempty"`
	Addresses []uint16 `yaml:"addresses,omitempty"`
	Model     string   `yaml:"model,omitempty"`
	Label     string   `yaml:"label,omitempty"`
}

// MonitorConfig contains reading history parameters.
type MonitorConfig struct {
	WindowSeconds  float64       `yaml:"window_seconds"`
	AverageSamples int           `yaml:"average_samples"` // Number of samples to average (0 = disabled, default)
	StaleAfter     time.Duration `yaml:"stale_after"`     // Heartbeat age after which the hub is considered lost
	MaxPoints      int           `yaml:"max_points"`      // Plot downsampling target

	SensorStaleAfter time.Duration `yaml:"sensor_stale_after"` // Age of a sensor's last reading after which it is reported stale
}

// MetricsConfig contains the prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the endpoint
	Path string `yaml:"path"`
}

// MQTTConfig contains the MQTT forwarding configuration.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"` // Empty disables forwarding
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AlertConfig is a threshold on one field of one sensor. Nil bounds are not
// checked.
type AlertConfig struct {
	Sensor string   `yaml:"sensor"`
	Field  string   `yaml:"field"`
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
}

// JournalConfig contains the on-disk event and reading log configuration.
type JournalConfig struct {
	Dir             string        `yaml:"dir"` // Empty disables the journal
	Readings        bool          `yaml:"readings"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// MockConfig contains simulated board configuration.
type MockConfig struct {
	Detached    []string      `yaml:"detached"`     // Channel kinds with nothing attached
	NoiseLevel  float64       `yaml:"noise_level"`  // Noise amplitude, in units of each reading
	Temperature float64       `yaml:"temperature"`  // °C
	Humidity    float64       `yaml:"humidity"`     // %RH
	Distance    float64       `yaml:"distance"`     // cm
	Analog      uint16        `yaml:"analog"`       // Raw ADC reading
	MotionEvery time.Duration `yaml:"motion_every"` // Period of simulated motion events
	MotionFor   time.Duration `yaml:"motion_for"`   // Duration of each motion event
}

func bound(v float64) *float64 { return &v }

// DefaultChannels returns the reference board wiring.
func DefaultChannels() []ChannelConfig {
	return []ChannelConfig{
		{Kind: "dht", Pin: 2, Model: hub.DefaultDHTModel},
		{Kind: "ds18b20", Pin: 3},
		{Kind: "bmp280", Bus: "i2c0", Addresses: []uint16{0x76, 0x77}},
		{Kind: "hcsr04", Trigger: 4, Echo: 5},
		{Kind: "pir", Pin: 6},
		{Kind: "analog", Pin: 14},
		{Kind: "analog", Pin: 15},
		{Kind: "analog", Pin: 16},
		{Kind: "analog", Pin: 17},
	}
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:                 "/dev/ttyUSB0",
			Baud:                 115200,
			AutoReconnect:        true,
			MaxReconnectAttempts: 10,
			ReconnectDelay:       2 * time.Second,
		},
		Hub: HubConfig{
			SampleInterval:    hub.DefaultSampleInterval,
			HeartbeatPeriod:   hub.DefaultHeartbeatPeriod,
			CommandBufferSize: hub.DefaultCommandBufferSize,
			EchoTimeout:       hub.DefaultEchoTimeout,
			BootMessage:       hub.DefaultBootMessage,
		},
		Channels: DefaultChannels(),
		Monitor: MonitorConfig{
			WindowSeconds:  60,
			AverageSamples: 0,
			StaleAfter:     30 * time.Second,
			MaxPoints:      400,

			SensorStaleAfter: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		MQTT: MQTTConfig{
			ClientID:    "gosensorhub",
			TopicPrefix: "sensorhub",
			QoS:         1,
			Timeout:     5 * time.Second,
		},
		Alerts: []AlertConfig{
			{Sensor: "DHT", Field: "temperature_c", Min: bound(-10), Max: bound(50)},
			{Sensor: "DHT", Field: "humidity_pct", Min: bound(20), Max: bound(80)},
			{Sensor: "HC_SR04", Field: "distance_cm", Min: bound(5), Max: bound(200)},
		},
		Journal: JournalConfig{
			Readings:        true,
			Retention:       30 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Mock: MockConfig{
			NoiseLevel:  0.01,
			Temperature: 21.5,
			Humidity:    45,
			Distance:    120,
			Analog:      512,
			MotionEvery: 15 * time.Second,
			MotionFor:   3 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the channel table and hub timing.
func (c *Config) Validate() error {
	hc, err := c.HubConfig()
	if err != nil {
		return err
	}
	if err := hc.Validate(); err != nil {
		return fmt.Errorf("invalid hub config: %w", err)
	}
	if c.Journal.Dir != "" && (c.Journal.Retention <= 0 || c.Journal.CleanupInterval <= 0) {
		return errors.New("journal retention and cleanup interval must be positive")
	}
	for i, a := range c.Alerts {
		if a.Sensor == "" || a.Field == "" {
			return fmt.Errorf("alert %d: sensor and field are required", i)
		}
		if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
			return fmt.Errorf("alert %s.%s: min %v above max %v", a.Sensor, a.Field, *a.Min, *a.Max)
		}
	}
	return nil
}

// HubConfig translates the configuration into the hub's channel table and
// timing.
func (c *Config) HubConfig() (hub.Config, error) {
	hc := hub.Config{
		SampleInterval:    c.Hub.SampleInterval,
		HeartbeatPeriod:   c.Hub.HeartbeatPeriod,
		CommandBufferSize: c.Hub.CommandBufferSize,
		EchoTimeout:       c.Hub.EchoTimeout,
		BootMessage:       c.Hub.BootMessage,
		IdleDelay:         time.Millisecond,
	}
	var errs []error
	for i, ch := range c.Channels {
		kind, err := hub.ParseKind(ch.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
			continue
		}
		hc.Channels = append(hc.Channels, hub.ChannelSpec{
			Kind:      kind,
			Name:      ch.Name,
			Pin:       ch.Pin,
			Trigger:   ch.Trigger,
			Echo:      ch.Echo,
			Bus:       ch.Bus,
			Addresses: ch.Addresses,
			Model:     ch.Model,
			Label:     ch.Label,
		})
	}
	if len(errs) > 0 {
		return hub.Config{}, errors.Join(errs...)
	}
	return hc, nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.MaxReconnectAttempts == 0 {
		c.Serial.MaxReconnectAttempts = def.Serial.MaxReconnectAttempts
	}
	if c.Serial.ReconnectDelay == 0 {
		c.Serial.ReconnectDelay = def.Serial.ReconnectDelay
	}

	if c.Hub.SampleInterval == 0 {
		c.Hub.SampleInterval = def.Hub.SampleInterval
	}
	if c.Hub.HeartbeatPeriod == 0 {
		c.Hub.HeartbeatPeriod = def.Hub.HeartbeatPeriod
	}
	if c.Hub.CommandBufferSize == 0 {
		c.Hub.CommandBufferSize = def.Hub.CommandBufferSize
	}
	if c.Hub.EchoTimeout == 0 {
		c.Hub.EchoTimeout = def.Hub.EchoTimeout
	}
	if c.Hub.BootMessage == "" {
		c.Hub.BootMessage = def.Hub.BootMessage
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}

	if c.Monitor.WindowSeconds == 0 {
		c.Monitor.WindowSeconds = def.Monitor.WindowSeconds
	}
	if c.Monitor.StaleAfter == 0 {
		c.Monitor.StaleAfter = def.Monitor.StaleAfter
	}
	if c.Monitor.MaxPoints == 0 {
		c.Monitor.MaxPoints = def.Monitor.MaxPoints
	}
	if c.Monitor.SensorStaleAfter == 0 {
		c.Monitor.SensorStaleAfter = def.Monitor.SensorStaleAfter
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.Timeout == 0 {
		c.MQTT.Timeout = def.MQTT.Timeout
	}

	if c.Journal.Retention == 0 {
		c.Journal.Retention = def.Journal.Retention
	}
	if c.Journal.CleanupInterval == 0 {
		c.Journal.CleanupInterval = def.Journal.CleanupInterval
	}

	if c.Mock.MotionEvery == 0 {
		c.Mock.MotionEvery = def.Mock.MotionEvery
	}
	if c.Mock.MotionFor == 0 {
		c.Mock.MotionFor = def.Mock.MotionFor
	}
}
