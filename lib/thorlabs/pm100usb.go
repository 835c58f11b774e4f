// Package thorlabs drives Thorlabs optical power meters.
package thorlabs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/instrument"
	"go.uber.org/zap"
)

// USB ids of the PM100USB in USBTMC mode.
const (
	VendorID  = 0x1313
	ProductID = 0x8072
)

// ErrNoSensor is returned by New when the meter reports no sensor head.
var ErrNoSensor = errors.New("no sensor connected")

// Flags is the sensor capability word from SYST:SENSOR:IDN?.
type Flags uint16

// Capability bits. Bits 2, 3 and 7 are reserved.
const (
	FlagPowerSensor        Flags = 1
	FlagEnergySensor       Flags = 2
	FlagResponseSettable   Flags = 16
	FlagWavelengthSettable Flags = 32
	FlagTauSettable        Flags = 64
	FlagTemperatureSensor  Flags = 256
)

// Has reports whether any bit of flag is set.
func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Sensor describes the attached sensor head.
type Sensor struct {
	Name    string
	Serial  string
	CalMsg  string
	Type    int
	Subtype int
	Flags   Flags
}

// Capability helpers over Flags.
func (s Sensor) IsPowerSensor() bool        { return s.Flags.Has(FlagPowerSensor) }
func (s Sensor) IsEnergySensor() bool       { return s.Flags.Has(FlagEnergySensor) }
func (s Sensor) ResponseSettable() bool     { return s.Flags.Has(FlagResponseSettable) }
func (s Sensor) WavelengthSettable() bool   { return s.Flags.Has(FlagWavelengthSettable) }
func (s Sensor) TauSettable() bool          { return s.Flags.Has(FlagTauSettable) }
func (s Sensor) HasTemperatureSensor() bool { return s.Flags.Has(FlagTemperatureSensor) }

var (
	disableForPowerSensor  = []string{"energy", "energy_range"}
	disableForEnergySensor = []string{"power", "power_range", "power_auto_range"}
)

// Properties of the PM100USB. wavelength is bounded by the sensor's own
// limits, read once per instrument.
var Properties = instrument.MustPropertySet(
	instrument.Property{
		Name:       "wavelength_min",
		Doc:        "Minimum wavelength, in nm.",
		GetCommand: "SENS:CORR:WAV? MIN",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "wavelength_max",
		Doc:        "Maximum wavelength, in nm.",
		GetCommand: "SENS:CORR:WAV? MAX",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "wavelength",
		Doc:        "Wavelength in nm.",
		GetCommand: "SENSE:CORR:WAV?",
		SetCommand: "SENSE:CORR:WAV %v",
		Validator:  instrument.StrictRange,
		Bounds:     wavelengthBounds,
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "power",
		Doc:        "Power, in W.",
		GetCommand: "MEAS:POW?",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:        "power_range",
		Doc:         "Power range in W.",
		GetCommand:  "SENS:POW:RANG?",
		SetCommand:  "SENS:POW:RANG %g",
		Cast:        instrument.Float,
		CheckErrors: true,
	},
	instrument.Property{
		Name:       "power_auto_range",
		Doc:        "Power auto-ranging.",
		GetCommand: "SENS:POW:RANG:AUTO?",
		SetCommand: "SENS:POW:RANG:AUTO %d",
		Validator:  instrument.StrictDiscreteSet,
		Map:        instrument.BoolMap(1, 0),
	},
	instrument.Property{
		Name:       "energy",
		Doc:        "Energy, in J.",
		GetCommand: "MEAS:ENER?",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:        "energy_range",
		Doc:         "Energy range in J.",
		GetCommand:  "SENS:ENER:RANG?",
		SetCommand:  "SENS:ENER:RANG %g",
		Cast:        instrument.Float,
		CheckErrors: true,
	},
)

func wavelengthBounds(s instrument.Scope) (any, error) {
	low, err := s.Memo("wavelength_min", func() (any, error) {
		return instrument.GetFloat(s, "wavelength_min")
	})
	if err != nil {
		return nil, err
	}
	high, err := s.Memo("wavelength_max", func() (any, error) {
		return instrument.GetFloat(s, "wavelength_max")
	})
	if err != nil {
		return nil, err
	}
	return instrument.Range{Low: low.(float64), High: high.(float64)}, nil
}

// PM100USB is a Thorlabs PM100USB power meter with the sensor it reported at
// construction.
type PM100USB struct {
	*instrument.Instrument
	Sensor Sensor
}

// New reads the sensor identity and disables the properties the sensor
// cannot serve.
func New(t instrument.Transport, opts ...instrument.Option) (*PM100USB, error) {
	inst, err := instrument.New(t, "ThorlabsPM100USB powermeter", Properties, opts...)
	if err != nil {
		return nil, err
	}
	idn, err := inst.Query("SYST:SENSOR:IDN?")
	if err != nil {
		return nil, fmt.Errorf("sensor identity: %w", err)
	}
	sensor, err := parseSensor(idn)
	if err != nil {
		return nil, err
	}
	pm := &PM100USB{Instrument: inst, Sensor: sensor}
	pm.gate()
	inst.Logger().Info("sensor attached",
		zap.String("sensor", sensor.Name),
		zap.String("serial", sensor.Serial),
		zap.Uint16("flags", uint16(sensor.Flags)),
	)
	return pm, nil
}

// parseSensor decodes "name,serial,calibration,type,subtype,flags". Serial
// numbers are kept as text.
func parseSensor(idn string) (Sensor, error) {
	fields := strings.Split(idn, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if strings.EqualFold(fields[0], "no sensor") {
		return Sensor{}, ErrNoSensor
	}
	if len(fields) < 6 {
		return Sensor{}, fmt.Errorf("sensor identity %q has %d fields, want 6", idn, len(fields))
	}
	var nums [3]int
	for i, f := range fields[3:6] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Sensor{}, fmt.Errorf("sensor identity %q: %w", idn, err)
		}
		nums[i] = n
	}
	return Sensor{
		Name:    fields[0],
		Serial:  fields[1],
		CalMsg:  fields[2],
		Type:    nums[0],
		Subtype: nums[1],
		Flags:   Flags(nums[2]) & 0x1ff,
	}, nil
}

func (pm *PM100USB) gate() {
	reason := pm.Sensor.Name + " sensor does not support this operation"
	if pm.Sensor.IsPowerSensor() {
		for _, name := range disableForPowerSensor {
			pm.Disable(name, reason)
		}
	}
	if pm.Sensor.IsEnergySensor() {
		for _, name := range disableForEnergySensor {
			pm.Disable(name, reason)
		}
	}
	if !pm.Sensor.WavelengthSettable() {
		pm.DisableOps("wavelength", pm.Sensor.Name+" does not allow setting the wavelength", instrument.OpWrite)
	}
}

// Zero runs the dark zero adjustment.
func (pm *PM100USB) Zero() error { return pm.Write("SENS:CORR:COLL:ZERO") }

// Power measures optical power in W.
func (pm *PM100USB) Power() (float64, error) { return instrument.GetFloat(pm, "power") }

// Energy measures pulse energy in J.
func (pm *PM100USB) Energy() (float64, error) { return instrument.GetFloat(pm, "energy") }

// Wavelength returns the correction wavelength in nm.
func (pm *PM100USB) Wavelength() (float64, error) { return instrument.GetFloat(pm, "wavelength") }

// SetWavelength sets the correction wavelength in nm.
func (pm *PM100USB) SetWavelength(nm float64) error { return pm.Set("wavelength", nm) }
