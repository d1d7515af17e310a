// Package render turns a controller snapshot into the texts and CSS classes
// shown by the panel. Rendering is pure: the same snapshot always yields the
// same view.
package render

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/timzifer/mistpanel/alerts"
	"github.com/timzifer/mistpanel/controller"
	"github.com/timzifer/mistpanel/runtime/state"
)

// Placeholder replaces readings that are not valid.
const Placeholder = "---"

const (
	waterBadgeBase = "px-3 py-1 text-sm font-bold rounded-full text-white"

	classGreenText = "text-green-300"
	classRedText   = "text-red-300"
)

// View is everything the page needs to redraw itself.
type View struct {
	Power          PowerView      `json:"power"`
	Atomizer       AtomizerView   `json:"atomizer"`
	Fan            FanView        `json:"fan"`
	Temperature    string         `json:"temperature"`
	Humidity       string         `json:"humidity"`
	Water          WaterView      `json:"water"`
	Status         string         `json:"status"`
	ConnectionHint bool           `json:"connection_hint"`
	Mode           string         `json:"mode"`
	Alerts         []alerts.Alert `json:"alerts"`
	Dirty          bool           `json:"dirty"`
	IntervalMS     int64          `json:"interval_ms"`
}

// PowerView describes the main power button.
type PowerView struct {
	On        bool   `json:"on"`
	IconClass string `json:"icon_class"`
	Text      string `json:"text"`
	TextClass string `json:"text_class"`
}

// AtomizerView describes the mist toggle.
type AtomizerView struct {
	On          bool   `json:"on"`
	ButtonText  string `json:"button_text"`
	ButtonClass string `json:"button_class"`
	IconClass   string `json:"icon_class"`
	StatusText  string `json:"status_text"`
	StatusClass string `json:"status_class"`
}

// FanView describes the fan slider and its label.
type FanView struct {
	Percent int    `json:"percent"`
	Duty    int    `json:"duty"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
}

// WaterView describes the water level badge.
type WaterView struct {
	Text  string `json:"text"`
	Class string `json:"class"`
}

// Render builds the view for a snapshot.
func Render(snap controller.Snapshot) View {
	s := snap.State
	view := View{
		Power:          renderPower(s.SystemOn),
		Atomizer:       renderAtomizer(s.AtomizerOn),
		Fan:            renderFan(snap.SliderPercent, s.SystemOn),
		Temperature:    Placeholder,
		Humidity:       Placeholder,
		Water:          renderWater(s.WaterLevel, s.WaterLevelText, snap.Status.ConnectionHint),
		Status:         snap.Status.Message,
		ConnectionHint: snap.Status.ConnectionHint,
		Mode:           ModeLabel(s.ControlMode),
		Alerts:         snap.Alerts,
		Dirty:          s.Dirty,
		IntervalMS:     snap.Interval.Milliseconds(),
	}
	if view.Alerts == nil {
		view.Alerts = []alerts.Alert{}
	}
	if s.ReadingsValid {
		view.Temperature = FormatReading(s.TemperatureC, "°C")
		view.Humidity = FormatReading(s.HumidityPercent, "%")
	}
	return view
}

// FormatReading prints a sensor value with exactly one decimal.
func FormatReading(value float64, unit string) string {
	return decimal.NewFromFloat(value).StringFixed(1) + unit
}

// FanText is the slider label, e.g. "40% (PWM: 102)".
func FanText(percent int) string {
	percent = state.ClampPercent(percent)
	return fmt.Sprintf("%d%% (PWM: %d)", percent, state.ToDuty(percent))
}

// ModeLabel names the device control mode for humans.
func ModeLabel(mode state.ControlMode) string {
	switch mode {
	case state.ControlAutomatic:
		return "Automatic"
	default:
		return "Manual"
	}
}

func renderPower(on bool) PowerView {
	if on {
		return PowerView{On: true, IconClass: "power-icon-on", Text: "System: On", TextClass: classGreenText}
	}
	return PowerView{IconClass: "power-icon-off", Text: "System: Off", TextClass: classRedText}
}

func renderAtomizer(on bool) AtomizerView {
	if on {
		return AtomizerView{
			On:          true,
			ButtonText:  "Turn mist off",
			ButtonClass: "bg-orange-500 hover:bg-orange-600",
			IconClass:   "text-yellow-300",
			StatusText:  "Status: On",
			StatusClass: classGreenText,
		}
	}
	return AtomizerView{
		ButtonText:  "Turn mist on",
		ButtonClass: "bg-[var(--color-accent)] hover:bg-[#2a688d]",
		IconClass:   "text-white",
		StatusText:  "Status: Off",
		StatusClass: classRedText,
	}
}

func renderFan(percent int, enabled bool) FanView {
	percent = state.ClampPercent(percent)
	return FanView{
		Percent: percent,
		Duty:    state.ToDuty(percent),
		Text:    FanText(percent),
		Enabled: enabled,
	}
}

// renderWater keeps the device's own wording for levels it does not map.
func renderWater(level state.WaterLevel, raw string, pollFailed bool) WaterView {
	if pollFailed {
		return WaterView{Text: "ERROR", Class: waterBadgeBase + " bg-red-600"}
	}
	switch level {
	case state.WaterHigh:
		return WaterView{Text: "High", Class: waterBadgeBase + " bg-green-600"}
	case state.WaterLow:
		return WaterView{Text: "Low", Class: waterBadgeBase + " bg-red-600"}
	default:
		text := raw
		if text == "" {
			text = "Unknown"
		}
		return WaterView{Text: text, Class: waterBadgeBase + " bg-gray-500"}
	}
}
