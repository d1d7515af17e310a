package state

import (
	"strings"
	"time"
)

// ControlMode reports whether the device follows operator commands or its own automation.
type ControlMode string

const (
	// ControlManual means the device accepts commands from the panel.
	ControlManual ControlMode = "manual"
	// ControlAutomatic means the firmware drives the actuators itself.
	ControlAutomatic ControlMode = "automatic"
)

// WaterLevel is the reservoir level reported by the float switch.
type WaterLevel string

const (
	WaterHigh    WaterLevel = "high"
	WaterLow     WaterLevel = "low"
	WaterUnknown WaterLevel = "unknown"
)

// ParseWaterLevel maps the firmware strings ("Alto", "Baixo") and their
// English equivalents onto a WaterLevel.
func ParseWaterLevel(raw string) WaterLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "alto", "high":
		return WaterHigh
	case "baixo", "low":
		return WaterLow
	default:
		return WaterUnknown
	}
}

// Reading is one decoded response of the device data endpoint. Optional
// fields are nil when the firmware variant does not report them.
type Reading struct {
	Temperature   float64
	Humidity      float64
	WaterLevel    *string
	SystemOn      *bool
	AtomizerOn    *bool
	FanDuty       *int
	ManualControl *bool
}

// DeviceState is the local mirror of the device. It is a cache: the next
// successful poll overwrites whatever the panel wrote optimistically.
type DeviceState struct {
	SystemOn        bool        `json:"system_on"`
	AtomizerOn      bool        `json:"atomizer_on"`
	FanSpeedPercent int         `json:"fan_speed_percent"`
	TemperatureC    float64     `json:"temperature_c"`
	HumidityPercent float64     `json:"humidity_percent"`
	ReadingsValid   bool        `json:"readings_valid"`
	ControlMode     ControlMode `json:"control_mode"`
	WaterLevel      WaterLevel  `json:"water_level"`
	WaterLevelText  string      `json:"water_level_text,omitempty"`
	Connected       bool        `json:"connected"`
	Dirty           bool        `json:"dirty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// New returns the startup state: everything off, nothing observed yet.
func New() DeviceState {
	return DeviceState{
		ControlMode: ControlManual,
		WaterLevel:  WaterUnknown,
	}
}

// FanDuty returns the PWM duty matching the current fan percentage.
func (s DeviceState) FanDuty() int {
	return ToDuty(s.FanSpeedPercent)
}

// ApplyReading overwrites the mirror with what the device reported and
// clears the dirty flag. Fields the device omitted keep their local value,
// except the water level which falls back to unknown.
func (s *DeviceState) ApplyReading(r Reading, now time.Time) {
	s.TemperatureC = r.Temperature
	s.HumidityPercent = r.Humidity
	s.ReadingsValid = true

	if r.WaterLevel != nil {
		s.WaterLevel = ParseWaterLevel(*r.WaterLevel)
		s.WaterLevelText = strings.TrimSpace(*r.WaterLevel)
	} else {
		s.WaterLevel = WaterUnknown
		s.WaterLevelText = ""
	}
	if r.SystemOn != nil {
		s.SystemOn = *r.SystemOn
	}
	if r.AtomizerOn != nil {
		s.AtomizerOn = *r.AtomizerOn
	}
	if r.FanDuty != nil {
		s.FanSpeedPercent = ToPercent(*r.FanDuty)
	}
	if r.ManualControl != nil {
		if *r.ManualControl {
			s.ControlMode = ControlManual
		} else {
			s.ControlMode = ControlAutomatic
		}
	}

	s.Connected = true
	s.Dirty = false
	s.UpdatedAt = now
}

// MarkDisconnected records a failed poll. Readings are blanked, actuator
// state is left as last known.
func (s *DeviceState) MarkDisconnected() {
	s.Connected = false
	s.ReadingsValid = false
}

// SetSystem applies an optimistic power change. Switching off also resets
// the atomizer and the fan locally.
func (s *DeviceState) SetSystem(on bool) {
	s.SystemOn = on
	if !on {
		s.AtomizerOn = false
		s.FanSpeedPercent = 0
	}
	s.Dirty = true
}

// SetAtomizer applies an optimistic atomizer change.
func (s *DeviceState) SetAtomizer(on bool) {
	s.AtomizerOn = on
	s.Dirty = true
}

// SetFanPercent applies an optimistic fan change, clamped to 0..100.
func (s *DeviceState) SetFanPercent(percent int) {
	s.FanSpeedPercent = ClampPercent(percent)
	s.Dirty = true
}
