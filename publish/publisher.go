// Package publish mirrors controller snapshots onto an MQTT broker.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/timzifer/mistpanel/alerts"
	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/controller"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// Payload is the retained JSON document published on <prefix>/state.
type Payload struct {
	SystemOn    bool           `json:"system_on"`
	AtomizerOn  bool           `json:"atomizer_on"`
	FanPercent  int            `json:"fan_percent"`
	FanDuty     int            `json:"fan_duty"`
	Temperature *float64       `json:"temperature"`
	Humidity    *float64       `json:"humidity"`
	WaterLevel  string         `json:"water_level"`
	Mode        string         `json:"mode"`
	Connected   bool           `json:"connected"`
	Dirty       bool           `json:"dirty"`
	Alerts      []alerts.Alert `json:"alerts,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// NewPayload flattens a snapshot. Readings are null while they are not valid.
func NewPayload(snap controller.Snapshot) Payload {
	s := snap.State
	p := Payload{
		SystemOn:   s.SystemOn,
		AtomizerOn: s.AtomizerOn,
		FanPercent: s.FanSpeedPercent,
		FanDuty:    s.FanDuty(),
		WaterLevel: string(s.WaterLevel),
		Mode:       string(s.ControlMode),
		Connected:  s.Connected,
		Dirty:      s.Dirty,
		Alerts:     snap.Alerts,
	}
	if s.ReadingsValid {
		temp, hum := s.TemperatureC, s.HumidityPercent
		p.Temperature = &temp
		p.Humidity = &hum
	}
	if !s.UpdatedAt.IsZero() {
		ts := s.UpdatedAt
		p.UpdatedAt = &ts
	}
	return p
}

// Publisher implements controller.Observer on top of a paho client.
type Publisher struct {
	client      mqtt.Client
	stateTopic  string
	statusTopic string
	qos         byte
	timeout     time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// StateTopic returns the topic snapshots are published on.
func StateTopic(prefix string) string {
	return strings.Trim(prefix, "/") + "/state"
}

// StatusTopic returns the retained availability topic.
func StatusTopic(prefix string) string {
	return strings.Trim(prefix, "/") + "/status"
}

// New connects to the configured broker. The broker marks the panel offline
// through the last will when the connection drops.
func New(cfg config.MQTTConfig, logger zerolog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	statusTopic := StatusTopic(cfg.TopicPrefix)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	opts.SetWill(statusTopic, availabilityOffline, cfg.QoS, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		c.Publish(statusTopic, cfg.QoS, true, availabilityOnline)
		logger.Info().Str("broker", cfg.Broker).Msg("mqtt: connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt: connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("mqtt: reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}
	return newPublisher(client, cfg, timeout, logger), nil
}

func newPublisher(client mqtt.Client, cfg config.MQTTConfig, timeout time.Duration, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:      client,
		stateTopic:  StateTopic(cfg.TopicPrefix),
		statusTopic: StatusTopic(cfg.TopicPrefix),
		qos:         cfg.QoS,
		timeout:     timeout,
		logger:      logger,
	}
}

// Observe publishes the snapshot asynchronously. Failures are logged and
// never reach the controller.
func (p *Publisher) Observe(snap controller.Snapshot) {
	payload, err := json.Marshal(NewPayload(snap))
	if err != nil {
		p.logger.Error().Err(err).Msg("mqtt: encode state")
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()

	token := p.client.Publish(p.stateTopic, p.qos, true, payload)
	go func() {
		defer p.pending.Done()
		if !token.WaitTimeout(p.timeout) {
			p.logger.Warn().Str("topic", p.stateTopic).Msg("mqtt: publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn().Err(err).Str("topic", p.stateTopic).Msg("mqtt: publish failed")
		}
	}()
}

// Close announces the panel offline and disconnects.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
	if p.client.IsConnected() {
		token := p.client.Publish(p.statusTopic, p.qos, true, availabilityOffline)
		token.WaitTimeout(p.timeout)
		p.client.Disconnect(250)
	}
	return nil
}

var _ controller.Observer = (*Publisher)(nil)
