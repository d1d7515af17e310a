package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/mistpanel/runtime/state"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncHotReload("config.yaml")
	collector.ObservePoll(true)
	collector.ObserveCommand("system", false)
	collector.ObserveState(state.New())
}

func TestPrometheusCollectorRegistersAndReusesCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncHotReload("a.yaml")

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.hotReloads, again.hotReloads)

	again.IncHotReload("a.yaml")

	mf := findFamily(t, reg, "mistpanel_config_hot_reload_total")
	require.Len(t, mf.Metric, 1)
	require.Equal(t, 2.0, mf.Metric[0].GetCounter().GetValue())
}

func TestPrometheusCollectorCountsPollsAndCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.ObservePoll(true)
	collector.ObservePoll(true)
	collector.ObservePoll(false)
	collector.ObserveCommand("atomizer", true)

	polls := findFamily(t, reg, "mistpanel_device_polls_total")
	values := map[string]float64{}
	for _, m := range polls.Metric {
		values[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	require.Equal(t, map[string]float64{"ok": 2, "error": 1}, values)

	commands := findFamily(t, reg, "mistpanel_device_commands_total")
	require.Len(t, commands.Metric, 1)
	require.Equal(t, "atomizer", labelValue(commands.Metric[0], "command"))
}

func TestPrometheusCollectorObservesState(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	s := state.New()
	s.SystemOn = true
	s.FanSpeedPercent = 40
	s.TemperatureC = 22.5
	s.ReadingsValid = true
	s.Connected = true
	s.UpdatedAt = time.Unix(1700000000, 0)
	collector.ObserveState(s)

	require.Equal(t, 22.5, findFamily(t, reg, "mistpanel_temperature_celsius").Metric[0].GetGauge().GetValue())
	require.Equal(t, 102.0, findFamily(t, reg, "mistpanel_fan_duty").Metric[0].GetGauge().GetValue())
	require.Equal(t, 1.0, findFamily(t, reg, "mistpanel_system_on").Metric[0].GetGauge().GetValue())
	require.Equal(t, 1700000000.0, findFamily(t, reg, "mistpanel_last_success_timestamp_seconds").Metric[0].GetGauge().GetValue())

	s.ReadingsValid = false
	s.TemperatureC = 0
	s.Connected = false
	collector.ObserveState(s)
	require.Equal(t, 22.5, findFamily(t, reg, "mistpanel_temperature_celsius").Metric[0].GetGauge().GetValue())
	require.Equal(t, 0.0, findFamily(t, reg, "mistpanel_device_connected").Metric[0].GetGauge().GetValue())
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
