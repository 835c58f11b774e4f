// Package tek drives Tektronix instruments.
package tek

import (
	"fmt"
	"math"

	"github.com/gotmc/instrument"
	"github.com/gotmc/instrument/lib/scpi"
	"github.com/shopspring/decimal"
)

// Shapes maps logical waveform shapes to the AFG's function keywords. The
// short form is sent; either form is accepted in responses.
var Shapes = instrument.MustValueMap(
	shape("sinusoidal", "SINusoid"),
	shape("square", "SQUare"),
	shape("pulse", "PULSe"),
	shape("ramp", "RAMP"),
	shape("prnoise", "PRNoise"),
	shape("dc", "DC"),
	shape("sinc", "SINC"),
	shape("gaussian", "GAUSsian"),
	shape("lorentz", "LORentz"),
	shape("erise", "ERISe"),
	shape("edecay", "EDECay"),
	shape("haversine", "HAVersine"),
)

func shape(name, keyword string) instrument.Pair {
	return instrument.Pair{Value: name, Token: scpi.MustParse(keyword)}
}

var (
	Units          = []string{"VPP", "VRMS", "DBM"}
	FrequencyLimit = instrument.Range{Low: 1e-6, High: 150e6}
	DutyLimit      = instrument.Range{Low: 0.001, High: 99.999}
	ImpedanceLimit = instrument.Range{Low: 1, High: 1e4}

	// AmplitudeLimit is the output amplitude range in each unit, derived
	// from the 20 mVpp to 10 Vpp range into 50 ohm.
	AmplitudeLimit = map[string]instrument.Range{
		"VPP":  {Low: 20e-3, High: 10},
		"VRMS": {Low: vrms(20e-3), High: vrms(10)},
		"DBM":  {Low: dbm(20e-3), High: dbm(10)},
	}
)

func round(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

func vrms(vpp float64) float64 { return round(vpp/2/math.Sqrt2, 3) }

func dbm(vpp float64) float64 { return round(20*math.Log10(vpp/2/math.Sqrt(0.1)), 2) }

func amplitude(name, unit string) instrument.Property {
	return instrument.Property{
		Name:       name,
		Doc:        "Output amplitude in " + unit + ".",
		GetCommand: "voltage:amplitude?",
		SetCommand: "voltage:amplitude %e" + unit,
		Validator:  instrument.StrictRange,
		Values:     AmplitudeLimit[unit],
		Cast:       instrument.Float,
	}
}

// ChannelProperties are shared by both outputs; commands get the
// "source<n>:" prefix.
var ChannelProperties = instrument.MustPropertySet(
	instrument.Property{
		Name:       "shape",
		Doc:        "Shape of the output.",
		GetCommand: "function:shape?",
		SetCommand: "function:shape %s",
		Validator:  instrument.StrictDiscreteSet,
		Map:        Shapes,
	},
	instrument.Property{
		Name:       "unit",
		Doc:        "Amplitude unit.",
		GetCommand: "voltage:unit?",
		SetCommand: "voltage:unit %s",
		Validator:  instrument.StrictDiscreteSet,
		Values:     Units,
	},
	amplitude("amp_vpp", "VPP"),
	amplitude("amp_dbm", "DBM"),
	amplitude("amp_vrms", "VRMS"),
	instrument.Property{
		Name:       "offset",
		Doc:        "Amplitude offset, always in V.",
		GetCommand: "voltage:offset?",
		SetCommand: "voltage:offset %e",
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "frequency",
		GetCommand: "frequency:fixed?",
		SetCommand: "frequency:fixed %e",
		Validator:  instrument.StrictRange,
		Values:     FrequencyLimit,
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "duty",
		Doc:        "Pulse duty cycle in percent.",
		GetCommand: "pulse:dcycle?",
		SetCommand: "pulse:dcycle %.3f",
		Validator:  instrument.StrictRange,
		Values:     DutyLimit,
		Cast:       instrument.Float,
	},
	instrument.Property{
		Name:       "impedance",
		Doc:        "Output impedance in ohm.",
		GetCommand: "output:impedance?",
		SetCommand: "output:impedance %d",
		Validator:  instrument.StrictRange,
		Values:     ImpedanceLimit,
		Cast:       instrument.Int,
	},
)

// AFG3152C is a Tektronix AFG3000 series two channel function generator.
type AFG3152C struct {
	*instrument.Instrument
	CH1, CH2 *Channel
}

// Channel is one output of the generator.
type Channel struct {
	*instrument.Channel
}

// New returns a generator with both channels, addressed as "source1:" and
// "source2:".
func New(t instrument.Transport, opts ...instrument.Option) (*AFG3152C, error) {
	inst, err := instrument.New(t, "Tektronix AFG3152C arbitrary function generator", nil, opts...)
	if err != nil {
		return nil, err
	}
	prefix := instrument.PrefixID("source%d:")
	return &AFG3152C{
		Instrument: inst,
		CH1:        &Channel{inst.AddChannel(1, ChannelProperties, prefix)},
		CH2:        &Channel{inst.AddChannel(2, ChannelProperties, prefix)},
	}, nil
}

// Beep sounds the front panel beeper.
func (afg *AFG3152C) Beep() error { return afg.Write("system:beep") }

// UploadArbitrary loads points into edit memory. The block is binary, so
// the transport must pass bytes through untouched (USBTMC or TCP).
func (afg *AFG3152C) UploadArbitrary(points []uint16) error {
	block, err := PackBlock(points)
	if err != nil {
		return err
	}
	return afg.Write("data:data EMEMory," + string(block))
}

// Arbitrary reads the waveform held in edit memory.
func (afg *AFG3152C) Arbitrary() ([]uint16, error) {
	resp, err := afg.Ask("data:data? EMEMory")
	if err != nil {
		return nil, err
	}
	return UnpackBlock([]byte(resp))
}

// Enable turns the output on.
func (c *Channel) Enable() error {
	return c.Parent().Write(fmt.Sprintf("output%d:state on", c.ID()))
}

// Disable turns the output off.
func (c *Channel) Disable() error {
	return c.Parent().Write(fmt.Sprintf("output%d:state off", c.ID()))
}

// Waveform describes a complete output setting.
type Waveform struct {
	Shape     string // function token, e.g. "SIN"
	Frequency float64
	Units     string
	Amplitude float64
	Offset    float64
}

// DefaultWaveform is a 1 MHz, 1 Vpp sine.
var DefaultWaveform = Waveform{Shape: "SIN", Frequency: 1e6, Units: "VPP", Amplitude: 1}

// SetWaveform sends the whole setting as one uninterrupted sequence.
func (c *Channel) SetWaveform(w Waveform) error {
	return c.Exclusive(func(tx instrument.Tx) error {
		for _, cmd := range []string{
			fmt.Sprintf("function:shape %s", w.Shape),
			fmt.Sprintf("frequency:fixed %e", w.Frequency),
			fmt.Sprintf("voltage:unit %s", w.Units),
			fmt.Sprintf("voltage:amplitude %e%s", w.Amplitude, w.Units),
			fmt.Sprintf("voltage:offset %eV", w.Offset),
		} {
			if err := tx.Write(cmd); err != nil {
				return err
			}
		}
		return nil
	})
}
