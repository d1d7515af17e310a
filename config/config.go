package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPollInterval matches the cadence of the reference panel.
	DefaultPollInterval = 5 * time.Second
	// DefaultDeviceTimeout bounds every request sent to the device.
	DefaultDeviceTimeout = 5 * time.Second
	// DefaultPanelListen is the listen address of the embedded panel.
	DefaultPanelListen = ":18080"
	// DefaultTopicPrefix prefixes MQTT state topics.
	DefaultTopicPrefix = "mistpanel"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Transport selects how commands are encoded for the device.
type Transport string

const (
	// TransportQuery sends GET /control?name=value.
	TransportQuery Transport = "query"
	// TransportForm sends POST /control with a form encoded body.
	TransportForm Transport = "form"
)

// CommandNames maps panel controls onto device command parameters.
type CommandNames struct {
	System   string `yaml:"system,omitempty"`
	Atomizer string `yaml:"atomizer,omitempty"`
	Fan      string `yaml:"fan,omitempty"`
}

// DeviceConfig describes how to reach the humidifier controller.
type DeviceConfig struct {
	Address   string       `yaml:"address"`
	Timeout   Duration     `yaml:"timeout,omitempty"`
	Transport Transport    `yaml:"transport,omitempty"`
	Commands  CommandNames `yaml:"commands,omitempty"`
}

// BaseURL returns the normalised device URL. Bare hosts default to http.
func (d DeviceConfig) BaseURL() (string, error) {
	addr := strings.TrimSpace(d.Address)
	if addr == "" {
		return "", errors.New("device address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse device address %q: %w", d.Address, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("device address %q has no host", d.Address)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

// PollConfig configures the poll cadence.
type PollConfig struct {
	Interval Duration `yaml:"interval,omitempty"`
}

// PanelConfig configures the embedded web panel.
type PanelConfig struct {
	Disable bool   `yaml:"disable,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// AlertConfig declares an advisory rule evaluated against the mirrored state.
type AlertConfig struct {
	ID       string `yaml:"id"`
	When     string `yaml:"when"`
	Message  string `yaml:"message"`
	Severity string `yaml:"severity,omitempty"`
}

// MQTTConfig configures the optional state publisher.
type MQTTConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Broker      string   `yaml:"broker"`
	ClientID    string   `yaml:"client_id,omitempty"`
	Username    string   `yaml:"username,omitempty"`
	Password    string   `yaml:"password,omitempty"`
	TopicPrefix string   `yaml:"topic_prefix,omitempty"`
	QoS         byte     `yaml:"qos,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
}

// Config is the root configuration structure for the panel.
type Config struct {
	Name      string          `yaml:"name,omitempty"`
	Device    DeviceConfig    `yaml:"device"`
	Poll      PollConfig      `yaml:"poll"`
	Panel     PanelConfig     `yaml:"panel"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alerts    []AlertConfig   `yaml:"alerts,omitempty"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HotReload bool            `yaml:"hot_reload,omitempty"`
	Source    string          `yaml:"-"`
}

// Load reads, schema checks and decodes the configuration file from disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(abs, raw)
	if err != nil {
		return nil, err
	}
	cfg.Source = abs
	return cfg, nil
}

// Parse decodes raw YAML. The filename is only used in error messages.
func Parse(filename string, raw []byte) (*Config, error) {
	if strings.TrimSpace(string(raw)) == "" {
		return nil, fmt.Errorf("config %s is empty", filename)
	}
	if err := validateSchema(filename, raw); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", filename, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Device.Timeout.Duration <= 0 {
		c.Device.Timeout.Duration = DefaultDeviceTimeout
	}
	if c.Device.Transport == "" {
		c.Device.Transport = TransportQuery
	}
	c.Device.Transport = Transport(strings.ToLower(string(c.Device.Transport)))
	if c.Device.Commands.System == "" {
		c.Device.Commands.System = "system"
	}
	if c.Device.Commands.Atomizer == "" {
		c.Device.Commands.Atomizer = "atomizer"
	}
	if c.Device.Commands.Fan == "" {
		c.Device.Commands.Fan = "fan_speed"
	}
	if c.Panel.Listen == "" {
		c.Panel.Listen = DefaultPanelListen
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "mistpanel"
	}
	if c.MQTT.Timeout.Duration <= 0 {
		c.MQTT.Timeout.Duration = 5 * time.Second
	}
}

// Validate enforces invariants the schema cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if _, err := c.Device.BaseURL(); err != nil {
		return err
	}
	switch c.Device.Transport {
	case TransportQuery, TransportForm:
	default:
		return fmt.Errorf("device.transport must be %q or %q, got %q", TransportQuery, TransportForm, c.Device.Transport)
	}
	// Zero selects DefaultPollInterval.
	if c.Poll.Interval.Duration < 0 {
		return errors.New("poll.interval must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Alerts))
	for i, alert := range c.Alerts {
		if strings.TrimSpace(alert.ID) == "" {
			return fmt.Errorf("alerts[%d]: id is required", i)
		}
		if _, dup := seen[alert.ID]; dup {
			return fmt.Errorf("alerts[%d]: duplicate id %q", i, alert.ID)
		}
		seen[alert.ID] = struct{}{}
		if strings.TrimSpace(alert.When) == "" {
			return fmt.Errorf("alert %s: when expression is required", alert.ID)
		}
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// PollInterval returns the configured poll cadence.
func (c *Config) PollInterval() time.Duration {
	if c == nil || c.Poll.Interval.Duration <= 0 {
		return DefaultPollInterval
	}
	return c.Poll.Interval.Duration
}
