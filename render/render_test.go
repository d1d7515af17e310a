package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/mistpanel/alerts"
	"github.com/timzifer/mistpanel/controller"
	"github.com/timzifer/mistpanel/runtime/state"
)

func connectedSnapshot() controller.Snapshot {
	s := state.New()
	s.SystemOn = true
	s.AtomizerOn = true
	s.FanSpeedPercent = 40
	s.TemperatureC = 23.44
	s.HumidityPercent = 56
	s.ReadingsValid = true
	s.Connected = true
	s.WaterLevel = state.WaterHigh
	s.ControlMode = state.ControlAutomatic
	s.UpdatedAt = time.Unix(1700000000, 0)
	return controller.Snapshot{
		State:         s,
		Status:        controller.Status{Message: "Connected. Data updated (mode: automatic)"},
		SliderPercent: 40,
		Interval:      5 * time.Second,
	}
}

func TestRenderConnected(t *testing.T) {
	view := Render(connectedSnapshot())

	require.Equal(t, PowerView{On: true, IconClass: "power-icon-on", Text: "System: On", TextClass: "text-green-300"}, view.Power)
	require.Equal(t, "Turn mist off", view.Atomizer.ButtonText)
	require.Equal(t, "bg-orange-500 hover:bg-orange-600", view.Atomizer.ButtonClass)
	require.Equal(t, "text-yellow-300", view.Atomizer.IconClass)
	require.Equal(t, "Status: On", view.Atomizer.StatusText)
	require.Equal(t, "40% (PWM: 102)", view.Fan.Text)
	require.Equal(t, 102, view.Fan.Duty)
	require.True(t, view.Fan.Enabled)
	require.Equal(t, "23.4°C", view.Temperature)
	require.Equal(t, "56.0%", view.Humidity)
	require.Equal(t, "High", view.Water.Text)
	require.Equal(t, "px-3 py-1 text-sm font-bold rounded-full text-white bg-green-600", view.Water.Class)
	require.Equal(t, "Automatic", view.Mode)
	require.False(t, view.ConnectionHint)
	require.EqualValues(t, 5000, view.IntervalMS)
	require.NotNil(t, view.Alerts)
}

func TestRenderIsIdempotent(t *testing.T) {
	snap := connectedSnapshot()
	snap.Alerts = []alerts.Alert{{ID: "dry", Severity: alerts.SeverityWarning, Message: "Refill"}}
	require.Equal(t, Render(snap), Render(snap))
}

func TestRenderSystemOff(t *testing.T) {
	snap := controller.Snapshot{State: state.New(), Status: controller.Status{Message: controller.MsgConnecting}}
	view := Render(snap)

	require.Equal(t, "power-icon-off", view.Power.IconClass)
	require.Equal(t, "System: Off", view.Power.Text)
	require.Equal(t, "text-red-300", view.Power.TextClass)
	require.Equal(t, "Turn mist on", view.Atomizer.ButtonText)
	require.Equal(t, "bg-[var(--color-accent)] hover:bg-[#2a688d]", view.Atomizer.ButtonClass)
	require.Equal(t, "text-white", view.Atomizer.IconClass)
	require.Equal(t, "Status: Off", view.Atomizer.StatusText)
	require.Equal(t, "text-red-300", view.Atomizer.StatusClass)
	require.Equal(t, "0% (PWM: 0)", view.Fan.Text)
	require.False(t, view.Fan.Enabled)
	require.Equal(t, Placeholder, view.Temperature)
	require.Equal(t, Placeholder, view.Humidity)
	require.Equal(t, "Unknown", view.Water.Text)
	require.Contains(t, view.Water.Class, "bg-gray-500")
	require.Equal(t, "Manual", view.Mode)
}

func TestRenderAfterFailedPoll(t *testing.T) {
	snap := connectedSnapshot()
	snap.State.MarkDisconnected()
	snap.Status = controller.Status{Message: controller.MsgPollFailed, ConnectionHint: true}
	view := Render(snap)

	require.Equal(t, Placeholder, view.Temperature)
	require.Equal(t, Placeholder, view.Humidity)
	require.Equal(t, "ERROR", view.Water.Text)
	require.Equal(t, "px-3 py-1 text-sm font-bold rounded-full text-white bg-red-600", view.Water.Class)
	require.True(t, view.ConnectionHint)
	require.Equal(t, controller.MsgPollFailed, view.Status)
	require.True(t, view.Power.On)
}

func TestRenderLowWater(t *testing.T) {
	snap := connectedSnapshot()
	snap.State.WaterLevel = state.WaterLow
	view := Render(snap)
	require.Equal(t, "Low", view.Water.Text)
	require.Contains(t, view.Water.Class, "bg-red-600")
}

func TestRenderUsesSliderNotStoredSpeed(t *testing.T) {
	snap := connectedSnapshot()
	snap.SliderPercent = 75
	view := Render(snap)
	require.Equal(t, "75% (PWM: 191)", view.Fan.Text)
}

func TestFormatReading(t *testing.T) {
	require.Equal(t, "0.0%", FormatReading(0, "%"))
	require.Equal(t, "-3.5°C", FormatReading(-3.5, "°C"))
	require.Equal(t, "99.9%", FormatReading(99.94, "%"))
}

func TestFanTextClamps(t *testing.T) {
	require.Equal(t, "100% (PWM: 255)", FanText(140))
	require.Equal(t, "0% (PWM: 0)", FanText(-5))
	require.Equal(t, "50% (PWM: 128)", FanText(50))
}

func TestRenderUnrecognisedWaterLevelShowsDeviceText(t *testing.T) {
	snap := connectedSnapshot()
	snap.State.WaterLevel = state.WaterUnknown
	snap.State.WaterLevelText = "Medio"
	view := Render(snap)
	require.Equal(t, "Medio", view.Water.Text)
	require.Equal(t, "px-3 py-1 text-sm font-bold rounded-full text-white bg-gray-500", view.Water.Class)
}
