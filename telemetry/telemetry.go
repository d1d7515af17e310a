package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/timzifer/mistpanel/runtime/state"
)

// Collector captures telemetry events emitted by the runtime.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks are executed inline with the poll loop and the
// command dispatcher, so they must not block.
type Collector interface {
	IncHotReload(file string)
	ObservePoll(ok bool)
	ObserveCommand(name string, ok bool)
	ObserveState(s state.DeviceState)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)            {}
func (noopCollector) ObservePoll(bool)               {}
func (noopCollector) ObserveCommand(string, bool)    {}
func (noopCollector) ObserveState(state.DeviceState) {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	hotReloads  *prometheus.CounterVec
	polls       *prometheus.CounterVec
	commands    *prometheus.CounterVec
	temperature prometheus.Gauge
	humidity    prometheus.Gauge
	fanDuty     prometheus.Gauge
	systemOn    prometheus.Gauge
	atomizerOn  prometheus.Gauge
	connected   prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewPrometheusCollector registers the required metrics with the provided registerer.
// Metrics that are already registered are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	c := &PrometheusCollector{}
	if c.hotReloads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mistpanel_config_hot_reload_total",
		Help: "Number of hot reload operations triggered per configuration source file.",
	}, []string{"file"})); err != nil {
		return nil, err
	}
	if c.polls, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mistpanel_device_polls_total",
		Help: "Number of device polls by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mistpanel_device_commands_total",
		Help: "Number of control commands sent to the device by name and result.",
	}, []string{"command", "result"})); err != nil {
		return nil, err
	}
	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.temperature, "mistpanel_temperature_celsius", "Last reported temperature (celsius)"},
		{&c.humidity, "mistpanel_humidity_percent", "Last reported relative humidity (%)"},
		{&c.fanDuty, "mistpanel_fan_duty", "Fan PWM duty (0-255) as mirrored locally"},
		{&c.systemOn, "mistpanel_system_on", "1 if the system is on"},
		{&c.atomizerOn, "mistpanel_atomizer_on", "1 if the atomizer is on"},
		{&c.connected, "mistpanel_device_connected", "1 if the last poll succeeded"},
		{&c.lastSuccess, "mistpanel_last_success_timestamp_seconds", "Last successful poll timestamp (epoch seconds)"},
	}
	for _, g := range gauges {
		gauge, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}))
		if err != nil {
			return nil, err
		}
		*g.dst = gauge
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// ObservePoll counts a poll outcome.
func (p *PrometheusCollector) ObservePoll(ok bool) {
	if p == nil || p.polls == nil {
		return
	}
	p.polls.WithLabelValues(result(ok)).Inc()
}

// ObserveCommand counts a command outcome.
func (p *PrometheusCollector) ObserveCommand(name string, ok bool) {
	if p == nil || p.commands == nil {
		return
	}
	p.commands.WithLabelValues(name, result(ok)).Inc()
}

// ObserveState mirrors the device state into gauges. Readings are only
// updated while they are valid so dashboards keep the last known value.
func (p *PrometheusCollector) ObserveState(s state.DeviceState) {
	if p == nil || p.connected == nil {
		return
	}
	if s.ReadingsValid {
		p.temperature.Set(s.TemperatureC)
		p.humidity.Set(s.HumidityPercent)
	}
	p.fanDuty.Set(float64(s.FanDuty()))
	p.systemOn.Set(boolGauge(s.SystemOn))
	p.atomizerOn.Set(boolGauge(s.AtomizerOn))
	p.connected.Set(boolGauge(s.Connected))
	if !s.UpdatedAt.IsZero() {
		p.lastSuccess.Set(float64(s.UpdatedAt.Unix()))
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
