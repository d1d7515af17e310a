// Package alerts evaluates operator defined advisory rules against the
// mirrored device state.
package alerts

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/runtime/state"
)

// Severity ranks an alert for display.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a rule that currently matches.
type Alert struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type rule struct {
	id       string
	severity Severity
	message  string
	source   string
	program  *vm.Program
}

// Engine holds the compiled rules. The zero value evaluates nothing.
type Engine struct {
	rules  []rule
	logger zerolog.Logger
}

// New compiles every configured rule. Any compile error rejects the whole set.
func New(cfgs []config.AlertConfig, logger zerolog.Logger) (*Engine, error) {
	engine := &Engine{logger: logger, rules: make([]rule, 0, len(cfgs))}
	for _, cfg := range cfgs {
		severity, err := parseSeverity(cfg.Severity)
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", cfg.ID, err)
		}
		program, err := expr.Compile(cfg.When, expr.Env(sampleEnv()), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("alert %s: compile %q: %w", cfg.ID, cfg.When, err)
		}
		engine.rules = append(engine.rules, rule{
			id:       cfg.ID,
			severity: severity,
			message:  cfg.Message,
			source:   cfg.When,
			program:  program,
		})
	}
	return engine, nil
}

// Evaluate returns the alerts whose rule matches s, in configuration order.
// Rules that fail at runtime are skipped.
func (e *Engine) Evaluate(s state.DeviceState) []Alert {
	if e == nil || len(e.rules) == 0 {
		return nil
	}
	env := Environment(s)
	var active []Alert
	for _, r := range e.rules {
		out, err := vm.Run(r.program, env)
		if err != nil {
			e.logger.Warn().Err(err).Str("alert", r.id).Msg("alert evaluation failed")
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			active = append(active, Alert{ID: r.id, Severity: r.severity, Message: r.message})
		}
	}
	return active
}

// Environment exposes the state to rule expressions.
func Environment(s state.DeviceState) map[string]interface{} {
	return map[string]interface{}{
		"system_on":      s.SystemOn,
		"atomizer_on":    s.AtomizerOn,
		"fan_percent":    s.FanSpeedPercent,
		"fan_duty":       s.FanDuty(),
		"temperature":    s.TemperatureC,
		"humidity":       s.HumidityPercent,
		"readings_valid": s.ReadingsValid,
		"water_level":    string(s.WaterLevel),
		"mode":           string(s.ControlMode),
		"connected":      s.Connected,
		"dirty":          s.Dirty,
	}
}

func sampleEnv() map[string]interface{} {
	return Environment(state.New())
}

func parseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", raw)
	}
}
