package state

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool       { return &v }
func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }

func TestToDutyMatchesRoundedScale(t *testing.T) {
	prev := -1
	for p := 0; p <= 100; p++ {
		got := ToDuty(p)
		require.Equal(t, int(math.Round(float64(p)/100*255)), got, "percent %d", p)
		require.GreaterOrEqual(t, got, prev, "duty must not decrease at %d", p)
		prev = got
	}
}

func TestToDutyBounds(t *testing.T) {
	require.Equal(t, 0, ToDuty(0))
	require.Equal(t, 255, ToDuty(100))
	require.Equal(t, 102, ToDuty(40))
	require.Equal(t, 128, ToDuty(50))
	require.Equal(t, 0, ToDuty(-10))
	require.Equal(t, 255, ToDuty(140))
}

func TestToPercentInvertsToDuty(t *testing.T) {
	for p := 0; p <= 100; p++ {
		require.Equal(t, p, ToPercent(ToDuty(p)), "percent %d", p)
	}
	require.Equal(t, 0, ToPercent(-1))
	require.Equal(t, 100, ToPercent(300))
}

func TestParseWaterLevel(t *testing.T) {
	require.Equal(t, WaterHigh, ParseWaterLevel("Alto"))
	require.Equal(t, WaterLow, ParseWaterLevel("baixo"))
	require.Equal(t, WaterHigh, ParseWaterLevel(" HIGH "))
	require.Equal(t, WaterUnknown, ParseWaterLevel(""))
	require.Equal(t, WaterUnknown, ParseWaterLevel("Medio"))
}

func TestNewStartsOff(t *testing.T) {
	s := New()
	require.False(t, s.SystemOn)
	require.False(t, s.AtomizerOn)
	require.Zero(t, s.FanSpeedPercent)
	require.False(t, s.ReadingsValid)
	require.False(t, s.Connected)
	require.Equal(t, WaterUnknown, s.WaterLevel)
}

func TestApplyReadingPollWins(t *testing.T) {
	s := New()
	s.SetSystem(true)
	s.SetAtomizer(true)
	s.SetFanPercent(80)
	require.True(t, s.Dirty)

	now := time.Unix(1700000000, 0)
	s.ApplyReading(Reading{
		Temperature:   21.5,
		Humidity:      64,
		WaterLevel:    stringPtr("Baixo"),
		SystemOn:      boolPtr(false),
		AtomizerOn:    boolPtr(false),
		FanDuty:       intPtr(51),
		ManualControl: boolPtr(false),
	}, now)

	require.False(t, s.SystemOn)
	require.False(t, s.AtomizerOn)
	require.Equal(t, 20, s.FanSpeedPercent)
	require.Equal(t, 21.5, s.TemperatureC)
	require.Equal(t, 64.0, s.HumidityPercent)
	require.Equal(t, WaterLow, s.WaterLevel)
	require.Equal(t, ControlAutomatic, s.ControlMode)
	require.True(t, s.Connected)
	require.True(t, s.ReadingsValid)
	require.False(t, s.Dirty)
	require.Equal(t, now, s.UpdatedAt)
}

func TestApplyReadingKeepsUnreportedActuators(t *testing.T) {
	s := New()
	s.SetSystem(true)
	s.SetFanPercent(40)

	s.ApplyReading(Reading{Temperature: 20, Humidity: 50, WaterLevel: stringPtr("Alto")}, time.Now())

	require.True(t, s.SystemOn)
	require.Equal(t, 40, s.FanSpeedPercent)
	require.Equal(t, WaterHigh, s.WaterLevel)
	require.False(t, s.Dirty)

	s.ApplyReading(Reading{Temperature: 20, Humidity: 50}, time.Now())
	require.Equal(t, WaterUnknown, s.WaterLevel)
}

func TestMarkDisconnectedBlanksReadings(t *testing.T) {
	s := New()
	s.ApplyReading(Reading{Temperature: 20, Humidity: 50, SystemOn: boolPtr(true)}, time.Now())
	s.MarkDisconnected()

	require.False(t, s.Connected)
	require.False(t, s.ReadingsValid)
	require.True(t, s.SystemOn)
}

func TestSetSystemOffCascades(t *testing.T) {
	s := New()
	s.SetSystem(true)
	s.SetAtomizer(true)
	s.SetFanPercent(40)

	s.SetSystem(false)

	require.False(t, s.SystemOn)
	require.False(t, s.AtomizerOn)
	require.Zero(t, s.FanSpeedPercent)
	require.True(t, s.Dirty)
}

func TestSetFanPercentClamps(t *testing.T) {
	s := New()
	s.SetFanPercent(150)
	require.Equal(t, 100, s.FanSpeedPercent)
	require.Equal(t, 255, s.FanDuty())
	s.SetFanPercent(-5)
	require.Zero(t, s.FanSpeedPercent)
}

func TestApplyReadingKeepsRawWaterText(t *testing.T) {
	s := New()
	raw := " Medio "
	s.ApplyReading(Reading{Temperature: 20, Humidity: 50, WaterLevel: &raw}, time.Now())
	require.Equal(t, WaterUnknown, s.WaterLevel)
	require.Equal(t, "Medio", s.WaterLevelText)

	s.ApplyReading(Reading{Temperature: 20, Humidity: 50}, time.Now())
	require.Equal(t, WaterUnknown, s.WaterLevel)
	require.Empty(t, s.WaterLevelText)
}
