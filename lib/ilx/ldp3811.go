// Package ilx drives ILX Lightwave laser diode instruments.
package ilx

import (
	"math"

	"github.com/gotmc/instrument"
	"go.uber.org/zap"
)

// Mode is the LDP 3811 output mode.
type Mode string

const (
	ContinuousWave    Mode = "CW"
	ConstantDutyCycle Mode = "CDC"
	ConstantPulseRep  Mode = "PRI"
	ExternalTrigger   Mode = "EXT"
)

const maxRepetitionInterval = 6500 // us

// Modes lists every output mode the driver accepts.
var Modes = []Mode{ContinuousWave, ConstantDutyCycle, ConstantPulseRep, ExternalTrigger}

// Properties of the LDP 3811. Currents are in mA and times in us.
var Properties = instrument.MustPropertySet(
	instrument.Property{
		Name:       "output_enabled",
		Doc:        "Whether the current output is enabled.",
		GetCommand: "OUTPUT?",
		SetCommand: "OUTPUT: %d",
		Validator:  instrument.StrictDiscreteSet,
		Map:        instrument.BoolMap(1, 0),
	},
	instrument.Property{
		Name:       "mode",
		GetCommand: "MODE?",
		SetCommand: "MODE:%s",
		Validator:  instrument.StrictDiscreteSet,
		Values:     Modes,
		Cast:       castMode,
	},
	instrument.Property{
		Name:       "current",
		Doc:        "Output current in mA.",
		GetCommand: "LDI?",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "current_setpoint",
		Doc:        "Current setpoint in mA, up to the limit of the selected range.",
		GetCommand: "SET:LDI?",
		SetCommand: "LDI %g",
		Validator:  instrument.StrictRange,
		Bounds:     currentSetpointBounds,
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "current_range_500_enabled",
		Doc:        "500 mA range when true, 200 mA range when false.",
		GetCommand: "RANGE?",
		SetCommand: "RANGE %d",
		Validator:  instrument.StrictDiscreteSet,
		Map:        instrument.BoolMap(500, 200),
	},
	instrument.Property{
		Name:       "current_limit_200",
		Doc:        "Current limit of the 200 mA range, in mA.",
		GetCommand: "LIMIT:I200?",
		SetCommand: "LIMIT:I200 %g",
		Validator:  instrument.StrictRange,
		Values:     instrument.Range{Low: 0, High: 200},
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "current_limit_500",
		Doc:        "Current limit of the 500 mA range, in mA.",
		GetCommand: "LIMIT:I500?",
		SetCommand: "LIMIT:I500 %g",
		Validator:  instrument.StrictRange,
		Values:     instrument.Range{Low: 0, High: 500},
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "duty_cycle",
		Doc:        "Duty cycle in percent.",
		GetCommand: "CDC?",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "duty_cycle_setpoint",
		Doc:        "Duty cycle in percent, from 100*pulse_width/6500 to 100.",
		GetCommand: "SET:CDC?",
		SetCommand: "CDC %g",
		Validator:  instrument.StrictRange,
		Bounds:     dutyCycleBounds,
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "pulse_repetition_interval",
		Doc:        "Pulse repetition interval in us.",
		GetCommand: "PRI?",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "pulse_repetition_interval_setpoint",
		Doc:        "Pulse repetition interval in us, from max(1, pulse_width) to 6500.",
		GetCommand: "SET:PRI?",
		SetCommand: "PRI %g",
		Validator:  instrument.StrictRange,
		Bounds:     repetitionIntervalBounds,
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "pulse_width",
		Doc:        "Pulse width in us.",
		GetCommand: "PW?",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "pulse_width_setpoint",
		Doc:        "Pulse width in us, from 0.1 to pulse_repetition_interval.",
		GetCommand: "SET:PW?",
		SetCommand: "PW %g",
		Validator:  instrument.StrictRange,
		Bounds:     pulseWidthBounds,
		Cast:       instrument.Float,
	},
)

func castMode(response string) (any, error) {
	s, err := instrument.String(response)
	if err != nil {
		return nil, err
	}
	return Mode(s.(string)), nil
}

func currentSetpointBounds(s instrument.Scope) (any, error) {
	wide, err := instrument.GetBool(s, "current_range_500_enabled")
	if err != nil {
		return nil, err
	}
	limit := "current_limit_200"
	if wide {
		limit = "current_limit_500"
	}
	high, err := instrument.GetFloat(s, limit)
	if err != nil {
		return nil, err
	}
	return instrument.Range{Low: 0, High: high}, nil
}

func dutyCycleBounds(s instrument.Scope) (any, error) {
	pw, err := instrument.GetFloat(s, "pulse_width")
	if err != nil {
		return nil, err
	}
	return instrument.Range{Low: 100 * pw / maxRepetitionInterval, High: 100}, nil
}

func repetitionIntervalBounds(s instrument.Scope) (any, error) {
	pw, err := instrument.GetFloat(s, "pulse_width")
	if err != nil {
		return nil, err
	}
	return instrument.Range{Low: math.Max(1, pw), High: maxRepetitionInterval}, nil
}

func pulseWidthBounds(s instrument.Scope) (any, error) {
	pri, err := instrument.GetFloat(s, "pulse_repetition_interval")
	if err != nil {
		return nil, err
	}
	return instrument.Range{Low: 0.1, High: pri}, nil
}

// LDP3811 is an ILX Lightwave LDP 3811 precision current source. It has no
// SCPI error queue; Errors reads its own error list.
type LDP3811 struct {
	*instrument.Instrument
}

// New wraps t. Nothing is sent until the first property access.
func New(t instrument.Transport, opts ...instrument.Option) (*LDP3811, error) {
	inst, err := instrument.New(t, "ILX Lightwave LDP 3811", Properties, opts...)
	if err != nil {
		return nil, err
	}
	return &LDP3811{inst}, nil
}

// Errors reads the error list. Each code is logged; a lone 0 means no
// errors.
func (l *LDP3811) Errors() ([]any, error) {
	errs, err := l.Values("ERRORS?")
	if err != nil {
		return nil, err
	}
	for _, e := range errs {
		if f, ok := e.(float64); ok && f == 0 {
			continue
		}
		l.Logger().Error("instrument error", zap.Any("code", e))
	}
	return errs, nil
}

// SetMode selects the output mode.
func (l *LDP3811) SetMode(m Mode) error { return l.Set("mode", m) }

// Mode reads the output mode.
func (l *LDP3811) Mode() (Mode, error) {
	v, err := l.Get("mode")
	if err != nil {
		return "", err
	}
	return v.(Mode), nil
}
