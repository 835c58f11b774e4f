// Package profile declares instruments in YAML instead of Go. A profile
// names the instrument's properties, their commands and domains, and is
// checked against a JSON schema before it is compiled into an
// instrument.PropertySet.
package profile

import (
	"fmt"
	"regexp"

	"github.com/gotmc/instrument"
)

// Profile is one instrument declaration as read from YAML.
type Profile struct {
	Name       string        `yaml:"name"`
	ErrorQuery string        `yaml:"error_query,omitempty"`
	Properties []PropertyDef `yaml:"properties,omitempty"`
	Channels   *ChannelsDef  `yaml:"channels,omitempty"`
}

// ChannelsDef declares identical channels whose commands are prefixed with
// Prefix formatted with the channel id, e.g. "source%d:".
type ChannelsDef struct {
	Prefix     string        `yaml:"prefix"`
	IDs        []int         `yaml:"ids"`
	Properties []PropertyDef `yaml:"properties"`
}

// PropertyDef declares one property. Validator is "range", "discrete" or
// "regex", and reads its domain from Range, Values or Pattern.
type PropertyDef struct {
	Name        string     `yaml:"name"`
	Doc         string     `yaml:"doc,omitempty"`
	Get         string     `yaml:"get,omitempty"`
	Set         string     `yaml:"set,omitempty"`
	Validator   string     `yaml:"validator,omitempty"`
	Range       []float64  `yaml:"range,omitempty"`
	Values      []any      `yaml:"values,omitempty"`
	Pattern     string     `yaml:"pattern,omitempty"`
	Map         []MapEntry `yaml:"map,omitempty"`
	Cast        string     `yaml:"cast,omitempty"`
	CheckErrors bool       `yaml:"check_errors,omitempty"`
}

// MapEntry pairs a logical value with its wire token. Entries keep their
// file order.
type MapEntry struct {
	Value any `yaml:"value"`
	Token any `yaml:"token"`
}

var casts = map[string]instrument.Cast{
	"":       instrument.String,
	"string": instrument.String,
	"float":  instrument.Float,
	"int":    instrument.Int,
	"bool":   instrument.Bool,
}

func (d PropertyDef) property() (instrument.Property, error) {
	p := instrument.Property{
		Name:        d.Name,
		Doc:         d.Doc,
		GetCommand:  d.Get,
		SetCommand:  d.Set,
		CheckErrors: d.CheckErrors,
	}
	cast, ok := casts[d.Cast]
	if !ok {
		return p, fmt.Errorf("property %q: unknown cast %q", d.Name, d.Cast)
	}
	p.Cast = cast

	if len(d.Map) > 0 {
		pairs := make([]instrument.Pair, len(d.Map))
		for i, e := range d.Map {
			pairs[i] = instrument.Pair{Value: e.Value, Token: e.Token}
		}
		m, err := instrument.NewValueMap(pairs...)
		if err != nil {
			return p, fmt.Errorf("property %q: %w", d.Name, err)
		}
		p.Map = m
	}

	switch d.Validator {
	case "":
	case "range":
		if len(d.Range) != 2 {
			return p, fmt.Errorf("property %q: range validator needs [low, high]", d.Name)
		}
		p.Validator = instrument.StrictRange
		p.Values = instrument.Range{Low: d.Range[0], High: d.Range[1]}
	case "discrete":
		p.Validator = instrument.StrictDiscreteSet
		if len(d.Values) > 0 {
			p.Values = d.Values
		}
	case "regex":
		re, err := regexp.Compile("^(?:" + d.Pattern + ")$")
		if err != nil {
			return p, fmt.Errorf("property %q: %w", d.Name, err)
		}
		p.Validator = instrument.StrictRegexp
		p.Values = re
	default:
		return p, fmt.Errorf("property %q: unknown validator %q", d.Name, d.Validator)
	}
	return p, nil
}

func compile(defs []PropertyDef) (*instrument.PropertySet, error) {
	props := make([]instrument.Property, 0, len(defs))
	for _, d := range defs {
		p, err := d.property()
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return instrument.NewPropertySet(props...)
}

// PropertySet compiles the instrument level properties.
func (p *Profile) PropertySet() (*instrument.PropertySet, error) {
	return compile(p.Properties)
}

// ChannelSet compiles the channel properties, or returns nil when the
// profile declares no channels.
func (p *Profile) ChannelSet() (*instrument.PropertySet, error) {
	if p.Channels == nil {
		return nil, nil
	}
	return compile(p.Channels.Properties)
}

// Open builds an instrument on t from the profile, adding its channels.
func (p *Profile) Open(t instrument.Transport, opts ...instrument.Option) (*instrument.Instrument, error) {
	props, err := p.PropertySet()
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	chprops, err := p.ChannelSet()
	if err != nil {
		return nil, fmt.Errorf("profile %s channels: %w", p.Name, err)
	}
	if p.ErrorQuery != "" {
		opts = append(opts, instrument.WithErrorQuery(p.ErrorQuery))
	}
	inst, err := instrument.New(t, p.Name, props, opts...)
	if err != nil {
		return nil, err
	}
	if chprops != nil {
		prefix := instrument.PrefixID(p.Channels.Prefix)
		for _, id := range p.Channels.IDs {
			inst.AddChannel(id, chprops, prefix)
		}
	}
	return inst, nil
}
