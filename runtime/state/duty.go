package state

import "math"

const (
	// MaxDuty is the full scale of the fan PWM channel.
	MaxDuty = 255
	// MaxPercent is the full scale of the fan slider.
	MaxPercent = 100
)

// ClampPercent limits p to 0..100.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxPercent {
		return MaxPercent
	}
	return p
}

// ToDuty converts a fan percentage into the 0..255 duty the firmware expects.
func ToDuty(percent int) int {
	p := ClampPercent(percent)
	return int(math.Round(float64(p) / MaxPercent * MaxDuty))
}

// ToPercent converts a reported duty back onto the 0..100 slider scale.
func ToPercent(duty int) int {
	if duty < 0 {
		duty = 0
	}
	if duty > MaxDuty {
		duty = MaxDuty
	}
	return int(math.Round(float64(duty) / MaxDuty * MaxPercent))
}
