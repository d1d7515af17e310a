package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/telemetry"
)

func TestHealthURL(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:18080/health", healthURL(":18080"))
	require.Equal(t, "http://127.0.0.1:9000/health", healthURL("0.0.0.0:9000"))
	require.Equal(t, "http://192.168.1.20:8080/health", healthURL("192.168.1.20:8080"))
	require.Equal(t, "http://[::1]:8080/health", healthURL("[::1]:8080"))
}

func TestNewMetricsDisabled(t *testing.T) {
	m, err := newMetrics(config.TelemetryConfig{})
	require.NoError(t, err)
	require.Equal(t, telemetry.Noop(), m.collector)
	require.Nil(t, m.gatherer)
}

func TestNewMetricsPrometheus(t *testing.T) {
	m, err := newMetrics(config.TelemetryConfig{Enabled: true, Provider: "Prometheus"})
	require.NoError(t, err)
	require.NotNil(t, m.gatherer)

	m.collector.ObservePoll(true)
	families, err := m.gatherer.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "mistpanel_device_polls_total")
}

func TestNewMetricsUnknownProvider(t *testing.T) {
	m, err := newMetrics(config.TelemetryConfig{Enabled: true, Provider: "statsd"})
	require.Error(t, err)
	require.Equal(t, telemetry.Noop(), m.collector)
}

func TestExecuteConfigCheck(t *testing.T) {
	cfg, err := config.Parse("test.yaml", []byte("device:\n  address: 10.0.0.5\nalerts:\n  - id: dry\n    when: water_level == \"low\"\n    message: Refill\n"))
	require.NoError(t, err)
	require.Equal(t, 0, executeConfigCheck(cfg))

	cfg.Alerts[0].When = "water_level =="
	require.Equal(t, 1, executeConfigCheck(cfg))
}

func TestOnlyPollIntervalChanged(t *testing.T) {
	parse := func(raw string) *config.Config {
		t.Helper()
		cfg, err := config.Parse("test.yaml", []byte(raw))
		require.NoError(t, err)
		cfg.Source = "/etc/mistpanel/config.yaml"
		return cfg
	}
	base := parse("device:\n  address: 10.0.0.5\npoll:\n  interval: 5s\n")

	faster := parse("device:\n  address: 10.0.0.5\npoll:\n  interval: 2s\n")
	require.True(t, onlyPollIntervalChanged(base, faster))
	require.Equal(t, 2*time.Second, faster.PollInterval())

	moved := parse("device:\n  address: 10.0.0.6\npoll:\n  interval: 2s\n")
	require.False(t, onlyPollIntervalChanged(base, moved))

	withAlert := parse("device:\n  address: 10.0.0.5\nalerts:\n  - id: dry\n    when: water_level == \"low\"\n    message: Refill\n")
	require.False(t, onlyPollIntervalChanged(base, withAlert))

	require.False(t, onlyPollIntervalChanged(nil, base))
}
