package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/mistpanel/alerts"
	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/remote"
	"github.com/timzifer/mistpanel/runtime/state"
	"github.com/timzifer/mistpanel/telemetry"
)

// Status line texts shown by the panel.
const (
	MsgConnecting = "Connecting to device..."
	MsgFetching   = "Fetching data..."
	MsgPollOK     = "Connected. Data updated (mode: %s)"
	MsgPollFailed = "ERROR: failed to reach device (check address and config)"
	MsgSending    = "Sending command: %s..."
	MsgSent       = "Command (%s) sent"
	MsgSendFailed = "ERROR sending command. Check the device address and routes."
	MsgSystemOff  = "Error: turn the system on first!"
)

const (
	commandOn  = "on"
	commandOff = "off"

	shutdownWindow = 2 * time.Second
)

// ErrSystemOff rejects actions that need the system powered on.
var ErrSystemOff = errors.New("system is off")

// Status is the human readable outcome of the last poll or command.
type Status struct {
	Message        string `json:"message"`
	ConnectionHint bool   `json:"connection_hint"`
}

// Snapshot is a consistent copy of everything the panel renders.
type Snapshot struct {
	State         state.DeviceState `json:"state"`
	Status        Status            `json:"status"`
	SliderPercent int               `json:"slider_percent"`
	Alerts        []alerts.Alert    `json:"alerts,omitempty"`
	Interval      time.Duration     `json:"interval"`
}

// Observer receives a snapshot after every poll and applied command, in the
// order the state changed. A snapshot overtaken by a newer one is dropped.
// Implementations must not block.
type Observer interface {
	Observe(Snapshot)
}

// Option configures the controller during construction.
type Option func(*Controller)

// WithClient installs a ready made device client.
func WithClient(client remote.Client) Option {
	return func(c *Controller) {
		c.client = client
	}
}

// WithClientFactory overrides how the device client is built from configuration.
func WithClientFactory(factory remote.ClientFactory) Option {
	return func(c *Controller) {
		c.factory = factory
	}
}

// WithTelemetry injects a telemetry collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(c *Controller) {
		if collector == nil {
			collector = telemetry.Noop()
		}
		c.telemetry = collector
	}
}

// WithObserver registers an observer such as the MQTT publisher.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller mirrors one device, polls it, and turns operator actions into
// commands. All state mutation happens under mu; device I/O never holds it.
type Controller struct {
	mu     sync.Mutex
	state  state.DeviceState
	status Status
	slider int

	client    remote.Client
	factory   remote.ClientFactory
	names     config.CommandNames
	logger    zerolog.Logger
	telemetry telemetry.Collector
	alerts    *alerts.Engine
	observers []Observer
	cycle     *cycleController
	now       func() time.Time

	// version numbers every state change under mu. Observers only ever see
	// increasing versions, so a slow publisher cannot reorder them.
	version   uint64
	pubMu     sync.Mutex
	published uint64

	polls sync.WaitGroup
}

// Validate checks a configuration the same way New would, without building a client.
func Validate(cfg *config.Config, logger zerolog.Logger) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := alerts.New(cfg.Alerts, logger); err != nil {
		return err
	}
	return nil
}

// New builds a controller from configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	c := &Controller{
		state:     state.New(),
		status:    Status{Message: MsgConnecting},
		names:     cfg.Device.Commands,
		logger:    logger,
		telemetry: telemetry.Noop(),
		factory:   remote.NewHTTPClientFactory(),
		cycle:     newCycleController(cfg.PollInterval()),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	engine, err := alerts.New(cfg.Alerts, logger.With().Str("component", "alerts").Logger())
	if err != nil {
		return nil, err
	}
	c.alerts = engine
	if c.client == nil {
		if c.factory == nil {
			return nil, errors.New("device client factory must not be nil")
		}
		client, err := c.factory(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("create device client: %w", err)
		}
		c.client = client
	}
	if c.names.System == "" {
		c.names.System = "system"
	}
	if c.names.Atomizer == "" {
		c.names.Atomizer = "atomizer"
	}
	if c.names.Fan == "" {
		c.names.Fan = "fan_speed"
	}
	return c, nil
}

// Run polls immediately and then on every tick until ctx is cancelled.
// Each tick starts an independent poll, so a slow device leads to
// overlapping requests whose results apply in arrival order.
func (c *Controller) Run(ctx context.Context) error {
	c.startPoll(ctx)
	for {
		if _, err := c.cycle.Wait(ctx); err != nil {
			c.waitPolls()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		c.startPoll(ctx)
	}
}

func (c *Controller) startPoll(ctx context.Context) {
	c.polls.Add(1)
	go func() {
		defer c.polls.Done()
		_ = c.PollOnce(ctx)
	}()
}

func (c *Controller) waitPolls() {
	done := make(chan struct{})
	go func() {
		c.polls.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownWindow):
		c.logger.Warn().Msg("in-flight polls still running at shutdown")
	}
}

// PollOnce fetches the device state once and applies the outcome. The error
// is informational; the state and status already reflect it.
func (c *Controller) PollOnce(ctx context.Context) error {
	c.mu.Lock()
	c.status = Status{Message: MsgFetching}
	c.mu.Unlock()

	reading, err := c.client.Data(ctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	if err != nil {
		c.state.MarkDisconnected()
		c.status = Status{Message: MsgPollFailed, ConnectionHint: true}
	} else {
		c.state.ApplyReading(reading, c.now())
		if reading.FanDuty != nil {
			c.slider = c.state.FanSpeedPercent
		}
		c.status = Status{Message: fmt.Sprintf(MsgPollOK, c.state.ControlMode)}
	}
	c.version++
	version := c.version
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.telemetry.ObservePoll(err == nil)
	c.publish(snap, version)
	if err != nil {
		c.logger.Warn().Err(err).Msg("device poll failed")
		return err
	}
	c.logger.Debug().
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Str("mode", string(snap.State.ControlMode)).
		Msg("device poll applied")
	return nil
}

// SendCommand issues one fire-and-forget command and reports whether the
// device accepted it. Failures are only surfaced through the status line.
func (c *Controller) SendCommand(ctx context.Context, name, value string) bool {
	return c.send(ctx, name, value) == nil
}

func (c *Controller) send(ctx context.Context, name, value string) error {
	c.mu.Lock()
	c.status.Message = fmt.Sprintf(MsgSending, name)
	c.mu.Unlock()

	err := c.client.Send(ctx, remote.Command{Name: name, Value: value})
	c.telemetry.ObserveCommand(name, err == nil)

	c.mu.Lock()
	if err != nil {
		c.status.Message = MsgSendFailed
	} else {
		c.status.Message = fmt.Sprintf(MsgSent, name)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("command", name).Str("value", value).Msg("control command failed")
		return err
	}
	c.logger.Info().Str("command", name).Str("value", value).Msg("control command sent")
	return nil
}

// TogglePower flips the main power. Switching off also resets the atomizer
// and fan locally without waiting for the device to confirm.
func (c *Controller) TogglePower(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	target := !c.state.SystemOn
	c.mu.Unlock()

	if err := c.send(ctx, c.names.System, onOff(target)); err != nil {
		return c.Snapshot(), err
	}
	return c.mutate(func(s *state.DeviceState) {
		s.SetSystem(target)
		c.slider = s.FanSpeedPercent
	}), nil
}

// ToggleAtomizer flips the atomizer. Rejected while the system is off.
func (c *Controller) ToggleAtomizer(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if !c.state.SystemOn {
		snap := c.rejectLocked(false)
		c.mu.Unlock()
		return snap, ErrSystemOff
	}
	target := !c.state.AtomizerOn
	c.mu.Unlock()

	if err := c.send(ctx, c.names.Atomizer, onOff(target)); err != nil {
		return c.Snapshot(), err
	}
	return c.mutate(func(s *state.DeviceState) {
		s.SetAtomizer(target)
	}), nil
}

// PreviewFan moves the slider while it is being dragged. Nothing is sent.
func (c *Controller) PreviewFan(percent int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slider = state.ClampPercent(percent)
	return c.snapshotLocked()
}

// SetFanPercent commits a slider position. The device receives the 0..255
// duty, never the percentage. Rejected while the system is off, in which case
// the slider snaps back to zero.
func (c *Controller) SetFanPercent(ctx context.Context, percent int) (Snapshot, error) {
	percent = state.ClampPercent(percent)
	c.mu.Lock()
	if !c.state.SystemOn {
		snap := c.rejectLocked(true)
		c.mu.Unlock()
		return snap, ErrSystemOff
	}
	c.slider = percent
	c.mu.Unlock()

	if err := c.send(ctx, c.names.Fan, strconv.Itoa(state.ToDuty(percent))); err != nil {
		return c.Snapshot(), err
	}
	return c.mutate(func(s *state.DeviceState) {
		s.SetFanPercent(percent)
		c.slider = s.FanSpeedPercent
	}), nil
}

// Snapshot returns a copy of the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SetInterval changes the poll cadence of a running controller.
func (c *Controller) SetInterval(d time.Duration) {
	c.cycle.SetInterval(d)
}

func (c *Controller) mutate(fn func(*state.DeviceState)) Snapshot {
	c.mu.Lock()
	fn(&c.state)
	c.version++
	version := c.version
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap, version)
	return snap
}

func (c *Controller) rejectLocked(resetSlider bool) Snapshot {
	c.status.Message = MsgSystemOff
	if resetSlider {
		c.slider = 0
	}
	c.logger.Info().Msg("action rejected while system is off")
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:         c.state,
		Status:        c.status,
		SliderPercent: c.slider,
		Alerts:        c.alerts.Evaluate(c.state),
		Interval:      c.cycle.Interval(),
	}
}

// publish hands snap to telemetry and observers unless a newer version was
// already published.
func (c *Controller) publish(snap Snapshot, version uint64) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if version <= c.published {
		return
	}
	c.published = version
	c.telemetry.ObserveState(snap.State)
	for _, o := range c.observers {
		o.Observe(snap)
	}
}

func onOff(on bool) string {
	if on {
		return commandOn
	}
	return commandOff
}
