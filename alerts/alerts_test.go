package alerts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/runtime/state"
)

func TestEvaluateMatchesRulesInOrder(t *testing.T) {
	engine, err := New([]config.AlertConfig{
		{ID: "low_water", When: `water_level == "low"`, Message: "Refill the tank", Severity: "warning"},
		{ID: "dry", When: `readings_valid && humidity < 40`, Message: "Air is dry"},
		{ID: "hot", When: `temperature > 30`, Message: "Too hot", Severity: "critical"},
	}, zerolog.Nop())
	require.NoError(t, err)

	s := state.New()
	s.WaterLevel = state.WaterLow
	s.ReadingsValid = true
	s.HumidityPercent = 35
	s.TemperatureC = 25

	got := engine.Evaluate(s)
	require.Equal(t, []Alert{
		{ID: "low_water", Severity: SeverityWarning, Message: "Refill the tank"},
		{ID: "dry", Severity: SeverityInfo, Message: "Air is dry"},
	}, got)
}

func TestEvaluateUsesFanDuty(t *testing.T) {
	engine, err := New([]config.AlertConfig{
		{ID: "fan_max", When: `system_on && fan_duty == 255`, Message: "Fan at full speed"},
	}, zerolog.Nop())
	require.NoError(t, err)

	s := state.New()
	s.SystemOn = true
	s.FanSpeedPercent = 100
	require.Len(t, engine.Evaluate(s), 1)

	s.FanSpeedPercent = 99
	require.Empty(t, engine.Evaluate(s))
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New([]config.AlertConfig{{ID: "broken", When: "humidity <"}}, zerolog.Nop())
	require.Error(t, err)
}

func TestNewRejectsNonBooleanExpression(t *testing.T) {
	_, err := New([]config.AlertConfig{{ID: "number", When: "humidity + 1"}}, zerolog.Nop())
	require.Error(t, err)
}

func TestNewRejectsUnknownSeverity(t *testing.T) {
	_, err := New([]config.AlertConfig{{ID: "x", When: "true", Severity: "loud"}}, zerolog.Nop())
	require.Error(t, err)
}

func TestNilEngineEvaluatesNothing(t *testing.T) {
	var engine *Engine
	require.Nil(t, engine.Evaluate(state.New()))
}
